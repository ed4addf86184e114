// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/smpp"
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
)

type remotes struct {
	BrokerURL string `toml:"broker_url"`
}

type config struct {
	Remotes   remotes `toml:"remotes"`
	RawOutput string  `toml:"raw_output"`
}

// Readable by all user groups but writeable by the user only.
const filePermission = 0o644

var (
	errReadFail            = errors.New("failed to read config file")
	errNoKey               = errors.New("no such key")
	errUnsupportedKeyValue = errors.New("unsupported data type for key")
	errWritingConfig       = errors.New("error in writing the updated config to file")
	errInvalidURL          = errors.New("invalid url")
	defaultConfigPath      = "./config.toml"
)

func read(file string) (config, error) {
	c := config{}
	data, err := os.Open(file)
	if err != nil {
		return c, errors.Wrap(errReadFail, err)
	}
	defer data.Close()

	buf, err := io.ReadAll(data)
	if err != nil {
		return c, errors.Wrap(errReadFail, err)
	}

	if err := toml.Unmarshal(buf, &c); err != nil {
		return config{}, err
	}

	return c, nil
}

// ParseConfig - parses the config file.
func ParseConfig(gwConf GatewayConfig) (GatewayConfig, error) {
	if ConfigPath == "" {
		ConfigPath = defaultConfigPath
	}

	_, err := os.Stat(ConfigPath)
	switch {
	// If the file does not exist, create it with default values.
	case os.IsNotExist(err):
		defaultConfig := config{
			Remotes: remotes{
				BrokerURL: "nats://localhost:4222",
			},
		}
		buf, err := toml.Marshal(defaultConfig)
		if err != nil {
			return gwConf, err
		}
		if err = os.WriteFile(ConfigPath, buf, filePermission); err != nil {
			return gwConf, errors.Wrap(errWritingConfig, err)
		}
	case err != nil:
		return gwConf, err
	}

	config, err := read(ConfigPath)
	if err != nil {
		return gwConf, err
	}

	if config.RawOutput != "" {
		rawOutput, err := strconv.ParseBool(config.RawOutput)
		if err != nil {
			return gwConf, err
		}
		// check for config file value or flag input value is true.
		RawOutput = rawOutput || RawOutput
	}

	if config.Remotes.BrokerURL != "" {
		gwConf.BrokerURL = config.Remotes.BrokerURL
	}

	return gwConf, nil
}

var cmdConfig = []cobra.Command{
	{
		Use:   "validate <path>",
		Short: "Validate transport config",
		Long: "Validate transport config\n" +
			"Usage:\n" +
			"\tsmppgate-cli config validate smppsim.yaml - loads the file and prints the effective settings\n",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)
				return
			}

			cfg, err := smpp.LoadTransportConfig(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)
				return
			}

			logJSONCmd(*cmd, cfg)
		},
	},
	{
		Use:   "set <key> <value>",
		Short: "CLI local config",
		Long: "Local param storage to prevent repetitive passing of keys\n" +
			"Usage:\n" +
			"\tsmppgate-cli config set broker_url nats://localhost:4222\n",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)
				return
			}

			if err := setConfigValue(args[0], args[1]); err != nil {
				logErrorCmd(*cmd, err)
				return
			}

			logOKCmd(*cmd)
		},
	},
}

// NewConfigCmd returns config command.
func NewConfigCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "config [validate | set]",
		Short: "Gateway and CLI config",
		Long:  `Validate transport configuration files and store CLI params to a local TOML file`,
	}

	for i := range cmdConfig {
		cmd.AddCommand(&cmdConfig[i])
	}

	return &cmd
}

func setConfigValue(key, value string) error {
	config, err := read(ConfigPath)
	if err != nil {
		return err
	}

	if strings.Contains(key, "url") {
		u, err := url.Parse(value)
		if err != nil {
			return errors.Wrap(errInvalidURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.Wrap(errInvalidURL, err)
		}
	}

	configKeyToField := map[string]interface{}{
		"broker_url": &config.Remotes.BrokerURL,
		"raw_output": &config.RawOutput,
	}

	fieldPtr, ok := configKeyToField[key]
	if !ok {
		return errNoKey
	}

	fieldValue := reflect.ValueOf(fieldPtr).Elem()

	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		fieldValue.SetBool(boolValue)
	default:
		return errors.Wrap(errUnsupportedKeyValue, err)
	}

	buf, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	if err = os.WriteFile(ConfigPath, buf, filePermission); err != nil {
		return errors.Wrap(errWritingConfig, err)
	}

	return nil
}
