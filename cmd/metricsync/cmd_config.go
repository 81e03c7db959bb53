// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metricsync/services/metricsync/config"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, file and environment are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if c.jsonOut {
				c.exitCode = OutputResult(c.stdout, c.outputConfig(), "config show", start, c.cfg, false, nil)
				return nil
			}
			data, err := config.Marshal(c.cfg)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(data)
			return err
		},
	})
	return cmd
}

func (c *cli) backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or restore backups of the CSV",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backups of the output CSV, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			mgr := storage.NewBackupManager(c.store, c.cfg.BackupOptions())
			backups, err := mgr.ListBackups(cmd.Context(), c.cfg.OutputLocation())
			if err != nil {
				return err
			}
			c.exitCode = OutputResult(c.stdout, c.outputConfig(), "backups list", start, backups, false, nil)
			if c.jsonOut {
				return nil
			}
			if len(backups) == 0 {
				c.printer.Info("No backups of " + c.cfg.OutputLocation())
				return nil
			}
			c.printer.Title("Backups of " + c.cfg.OutputLocation())
			for _, b := range backups {
				c.printer.KeyValue(b.CreatedAt.Format(time.DateTime), fmt.Sprintf("%s (%d bytes)", b.URL, b.Size))
			}
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Replace the output CSV with a backup",
		Long: `Replaces the output CSV with the given backup (a path or URL as printed by
"backups list"). The current file is backed up first unless --no-backup is
given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			ctx := cmd.Context()
			target := c.cfg.OutputLocation()
			mgr := storage.NewBackupManager(c.store, c.cfg.BackupOptions())

			result := struct {
				Restored string `json:"restored"`
				Target   string `json:"target"`
				Backup   string `json:"backup,omitempty"`
			}{Restored: args[0], Target: target}

			current, err := mgr.RestoreBackup(ctx, args[0], target, !c.noBackup)
			result.Backup = current
			if err == nil {
				c.logger.Info("backup restored", "target", target, "backup", args[0], "previous", current)
			}
			c.exitCode = OutputResult(c.stdout, c.outputConfig(), "backups restore", start, result, false, err)
			if c.jsonOut {
				return nil
			}
			if err != nil {
				c.printer.WarningBox("Restore failed", err.Error()+"\n\n"+target+" was not modified.")
				return nil
			}
			c.printer.Success(fmt.Sprintf("Restored %s from %s", target, args[0]))
			if result.Backup != "" {
				c.printer.KeyValue("Previous file", result.Backup)
			}
			return nil
		},
	}
	restore.Flags().BoolVar(&c.noBackup, "no-backup", false, "Do not back up the current file first")
	restore.Flags().StringVarP(&c.output, "output", "o", "", "CSV to restore (default: configured output)")
	list.Flags().StringVarP(&c.output, "output", "o", "", "CSV whose backups to list (default: configured output)")

	cmd.AddCommand(list, restore)
	return cmd
}
