package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caresearch/medrank/configs"
	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		force      bool
		corpusPath string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project configuration",
		Long: `Create .medrank.yaml in the current (or --project) directory from the
embedded template.

The project config names the corpus file and the ranking defaults for
this dataset, and is meant to be version-controlled alongside it.`,
		Example: `  medrank init
  medrank init --corpus data/practitioners.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, corpusPath)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing .medrank.yaml")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus file to verify and record in the config")
	return cmd
}

func runInit(cmd *cobra.Command, force bool, corpusPath string) error {
	out := output.New(cmd.OutOrStdout())

	dir := projectDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	yamlPath := filepath.Join(dir, ".medrank.yaml")
	if _, err := os.Stat(yamlPath); err == nil && !force {
		out.Warningf("Project config already exists: %s", yamlPath)
		out.Detail("Use --force to overwrite")
		return nil
	}

	if corpusPath != "" {
		c, err := corpus.Load(corpusPath)
		if err != nil {
			return fmt.Errorf("corpus check failed: %w", err)
		}
		out.Successf("Corpus OK: %d practitioners", c.Len())
	}

	content := configs.ProjectConfigTemplate
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}
	out.Successf("Created %s", yamlPath)
	if corpusPath != "" {
		out.Detail(fmt.Sprintf("Set corpus.path to %q in it", corpusPath))
	} else {
		out.Detail("Set corpus.path to your practitioner corpus file")
	}
	return nil
}
