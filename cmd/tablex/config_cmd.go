package main

import (
	"fmt"

	"github.com/hatlonely/tablex/cfg"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd 输出配置项说明，--dump 时输出合并了默认值和环境变量之后的配置
func newConfigCmd(flags *rootFlags) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Describe the configuration options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dump {
				_, err := fmt.Fprint(cmd.OutOrStdout(), cfg.Help(&Config{}, envPrefix))
				return err
			}
			config, err := loadConfig(flags.config)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.ToMap(config))
			if err != nil {
				return errors.Wrap(err, "encode config failed")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the effective configuration as yaml")
	return cmd
}
