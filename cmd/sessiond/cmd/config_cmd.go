package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(newViper(cfgFile))
		if err != nil {
			return err
		}
		redacted := *cfg
		if redacted.Session.SigningKey != "" {
			redacted.Session.SigningKey = "<redacted>"
		}
		if redacted.Core.APIKey != "" {
			redacted.Core.APIKey = "<redacted>"
		}
		if redacted.Redis.Password != "" {
			redacted.Redis.Password = "<redacted>"
		}
		out, err := yaml.Marshal(redacted)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
