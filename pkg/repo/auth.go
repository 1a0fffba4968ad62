package repo

import (
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
)

// Mocked out for unit testing.
var getenv = os.Getenv

const defaultSSHUser = "git"

// getAuthMethod returns the credentials for the given remote URL. It returns
// nil if the transport doesn't need any, or if the credentials should be
// left to go-git's defaults.
func getAuthMethod(url string, auth config.Auth) (transport.AuthMethod, error) {
	endpoint, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, errors.WithContext(err, "parse repository URL")
	}

	switch endpoint.Protocol {
	case "ssh":
		return getSSHAuth(endpoint.User, auth)
	case "http", "https":
		return getTokenAuth(auth)
	default:
		return nil, nil
	}
}

func getSSHAuth(user string, auth config.Auth) (transport.AuthMethod, error) {
	if user == "" {
		user = defaultSSHUser
	}

	var helper *ssh.HostKeyCallbackHelper
	var method transport.AuthMethod
	if auth.SSHKey != "" {
		var passphrase string
		if auth.SSHPassphraseEnv != "" {
			passphrase = getenv(auth.SSHPassphraseEnv)
		}

		keys, err := ssh.NewPublicKeysFromFile(user, auth.SSHKey, passphrase)
		if err != nil {
			return nil, errors.NewFriendlyError(
				"Failed to load the SSH key %q: %s", auth.SSHKey, err)
		}
		helper, method = &keys.HostKeyCallbackHelper, keys
	} else {
		agent, err := ssh.NewSSHAgentAuth(user)
		if err != nil {
			return nil, errors.NewFriendlyError(
				"No SSH key is configured, and the SSH agent isn't available: %s\n"+
					"Set `auth.ssh_key` in the config, or start an SSH agent.", err)
		}
		helper, method = &agent.HostKeyCallbackHelper, agent
	}

	if auth.KnownHosts != "" {
		callback, err := knownhosts.New(auth.KnownHosts)
		if err != nil {
			return nil, errors.WithContext(err, "read known hosts")
		}
		helper.HostKeyCallback = callback
	}
	return method, nil
}

func getTokenAuth(auth config.Auth) (transport.AuthMethod, error) {
	if auth.TokenEnv == "" {
		return nil, nil
	}

	token := getenv(auth.TokenEnv)
	if token == "" {
		return nil, errors.NewFriendlyError(
			"The access token variable $%s is empty.\n"+
				"Set it, or remove `auth.token_env` from the config.", auth.TokenEnv)
	}

	// Git hosts ignore the username when the password is a token.
	return &http.BasicAuth{Username: "token", Password: token}, nil
}
