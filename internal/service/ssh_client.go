package service

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DialAgent opens an SSH connection to an execution agent using its
// credential's private key.
func DialAgent(
	username, hostname string,
	privateKey []byte,
	timeout time.Duration,
) (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("err parsing ssh private key: %+w", err)
	}
	auth := ssh.PublicKeys(signer)
	cc := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	split := strings.Split(hostname, ":")
	if len(split) == 1 {
		hostname += ":22"
	}
	client, err := ssh.Dial("tcp", hostname, cc)
	if err != nil {
		return nil, fmt.Errorf("err dialing ssh: %+w", err)
	}
	return client, nil
}

// ReadRemoteFile reads one file on the agent through a dedicated
// session.
func ReadRemoteFile(client *ssh.Client, path string) ([]byte, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.Output("cat " + shellQuoteRemote(path))
}

func shellQuoteRemote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
