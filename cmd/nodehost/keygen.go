package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-nodehost/internal/core/identity"
)

func newKeygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "生成 Ed25519 身份密钥",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}

			id, err := identity.Generate()
			if err != nil {
				return err
			}
			if err := identity.Save(id, out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.PeerID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "密钥文件路径")
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已存在的密钥文件")
	return cmd
}

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id <key-file>",
		Short: "显示密钥文件对应的节点 ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.PeerID())
			return nil
		},
	}
}
