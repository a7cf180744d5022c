package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

type directoryFile struct {
	Users    []userRecord    `yaml:"users"`
	Subjects []subjectRecord `yaml:"subjects"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load users and subjects into the configured store",
	Long: `Load the people who receive notifications and the dogs they are
responsible for. Existing records with the same id are replaced.

File format:
  users:
    - {id: parent-1, name: Ana, role: parent}
    - {id: admin-1, name: Ada, role: admin}
  subjects:
    - id: dog-1
      name: Luna
      size_class: medium
      owner_id: parent-1
      locations: [home, school]
      teacher_ids: [teacher-1]`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var file directoryFile
	if err := readYAML(args[0], &file); err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	users, subjects, err := importDirectory(cmd.Context(), store, file)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d users, %d subjects\n", users, subjects)
	return err
}

// importDirectory stores every valid record and returns the first error.
// Invalid records are reported and skipped.
func importDirectory(ctx context.Context, store storage.Storage, file directoryFile) (users, subjects int, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, rec := range file.Users {
		u, verr := rec.model()
		if verr != nil {
			printError("%v", verr)
			continue
		}
		if err := store.Users().SaveUser(ctx, u); err != nil {
			return users, subjects, fmt.Errorf("save user %s: %w", u.ID, err)
		}
		users++
	}
	for _, rec := range file.Subjects {
		s, verr := rec.model()
		if verr != nil {
			printError("%v", verr)
			continue
		}
		if err := store.Subjects().SaveSubject(ctx, s); err != nil {
			return users, subjects, fmt.Errorf("save subject %s: %w", s.ID, err)
		}
		subjects++
	}
	return users, subjects, nil
}
