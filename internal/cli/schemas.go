package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FreelineGuide/ExamBulldozer/constants"
	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/schema"
)

var (
	schemaFile     string
	templateFile   string
	typeName       string
	typeDescribing string
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "Manage question types",
}

var schemasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and custom question types",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		list, err := a.schemas.List(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable("ID", "NAME", "SOURCE", "DESCRIPTION")
		for _, d := range list {
			source := "custom"
			switch {
			case d.Overridden:
				source = "builtin (overridden)"
			case d.Builtin:
				source = "builtin"
			}
			t.Row(d.ID, d.Name, source, d.Description)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	}),
}

var schemasShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a question type with its schema and prompt template",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		d, err := a.schemas.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}),
}

var schemasAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Register a custom question type or override a built-in one",
	Long: `Add stores a custom question type in the configured schema store
(SCHEMA_SOURCE=file or sql). The schema file may be JSON or YAML and must be
a Draft-7 object schema. Without --template a generic prompt is used.

Adding a built-in id overrides its prompt, schema, name or description; flags
left out keep the built-in values, and delete restores the built-in.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		var doc []byte
		switch {
		case schemaFile != "":
			b, err := loadSchemaFile(schemaFile)
			if err != nil {
				return err
			}
			doc = b
		case !constants.IsBuiltin(args[0]):
			return common.ConfigErrorf("--schema is required for custom question type %q", args[0])
		}
		d := schema.Descriptor{ID: args[0], Name: typeName, Description: typeDescribing, JSONSchema: doc}
		if templateFile != "" {
			b, err := os.ReadFile(templateFile)
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			d.PromptTemplate = string(b)
		}
		if err := a.schemas.Put(cmd.Context(), d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored question type %s\n", d.ID)
		return nil
	}),
}

var schemasDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a custom question type or a built-in override",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.schemas.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted question type %s\n", args[0])
		return nil
	}),
}

var schemasCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Check that a schema file is a usable Draft-7 object schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadSchemaFile(args[0])
		if err != nil {
			return err
		}
		if err := schema.CheckSchemaWellFormed(doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	},
}

func init() {
	schemasAddCmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "JSON or YAML schema file (required for custom types)")
	schemasAddCmd.Flags().StringVar(&templateFile, "template", "", "prompt template file containing "+schema.TextPlaceholder)
	schemasAddCmd.Flags().StringVar(&typeName, "name", "", "display name (default is the id)")
	schemasAddCmd.Flags().StringVar(&typeDescribing, "description", "", "what the questions look like")

	schemasCmd.AddCommand(schemasListCmd, schemasShowCmd, schemasAddCmd, schemasDeleteCmd, schemasCheckCmd)
	rootCmd.AddCommand(schemasCmd)
}

// loadSchemaFile reads a JSON or YAML schema and returns it as JSON.
func loadSchemaFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewConfigError("read schema file", err)
	}
	if json.Valid(b) {
		return b, nil
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("parse %s", path), err)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, common.NewConfigError(fmt.Sprintf("convert %s to JSON", path), err)
	}
	return doc, nil
}

// withApp builds the shared collaborators around a command body.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}
