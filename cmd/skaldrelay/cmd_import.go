/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/skald_relay/internal/db"
	"github.com/friendsincode/skald_relay/internal/events"
	"github.com/friendsincode/skald_relay/internal/schedule"
	"github.com/friendsincode/skald_relay/internal/store"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the slot assignment table",
}

var scheduleImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import slot assignments from a YAML file",
	Long:  "Load a YAML schedule document and replace the stored user set for every slot it names. Slots absent from the file are left untouched.",
	RunE:  runScheduleImport,
}

var scheduleExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored schedule as YAML",
	RunE:  runScheduleExport,
}

var (
	scheduleFilePath string
	scheduleDryRun   bool
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleImportCmd)
	scheduleCmd.AddCommand(scheduleExportCmd)

	scheduleImportCmd.Flags().StringVar(&scheduleFilePath, "file", "", "Path to the YAML schedule document (required)")
	scheduleImportCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "Validate the document without writing")
	scheduleImportCmd.MarkFlagRequired("file")
}

func runScheduleImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	file, err := os.Open(scheduleFilePath)
	if err != nil {
		return fmt.Errorf("open schedule file: %w", err)
	}
	defer file.Close()

	doc, err := schedule.Parse(file)
	if err != nil {
		return err
	}

	if scheduleDryRun {
		logger.Info().Int("slots", len(doc.Slots)).Msg("schedule document valid, dry run, nothing written")
		return nil
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()

	st := store.New(database, logger)
	n, err := schedule.Import(cmd.Context(), st, doc, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	relay, err := startRelay(bus)
	if err != nil {
		return err
	}
	bus.Publish(events.EventScheduleImported, events.Payload{"slots": n})
	if relay != nil {
		relay.Stop()
	}

	logger.Info().Int("slots", n).Msg("schedule imported")
	return nil
}

func runScheduleExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()

	return schedule.Export(cmd.Context(), store.New(database, logger), os.Stdout)
}
