package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/styxit/spoof/internal/templates"
)

var templatesTags []string

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)

	templatesListCmd.Flags().StringSliceVar(&templatesTags, "tag", nil, "only list templates with any of these tags")
}

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template", "tpl"},
	Short:   "Inspect event templates",
	Long: `Inspect the event templates spoof can render.

Templates are YAML files searched in the configured templates_dir,
./.spoof/templates, ~/.config/spoof/templates and /usr/share/spoof/templates,
before the builtin set. The first template with a given name wins.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry(GetConfig())
		if err != nil {
			return err
		}
		return listTemplates(cmd.OutOrStdout(), filterTemplates(registry.List(), templatesTags))
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a template and its variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry(GetConfig())
		if err != nil {
			return err
		}
		tmpl, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		return showTemplate(cmd.OutOrStdout(), tmpl)
	},
}

// TemplateInfo is the JSON form of a template.
type TemplateInfo struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	Event        string                  `json:"event,omitempty"`
	Source       string                  `json:"source"`
	Tags         []string                `json:"tags,omitempty"`
	Variables    []templates.TemplateVar `json:"variables,omitempty"`
	Placeholders []string                `json:"placeholders"`
	Body         string                  `json:"body,omitempty"`
}

func templateInfo(tmpl *templates.Template, withBody bool) (TemplateInfo, error) {
	placeholders, err := templates.Placeholders(tmpl)
	if err != nil {
		return TemplateInfo{}, err
	}
	info := TemplateInfo{
		Name:         tmpl.Name,
		Description:  tmpl.Description,
		Event:        tmpl.Event,
		Source:       tmpl.Source,
		Tags:         tmpl.Tags,
		Variables:    tmpl.Variables,
		Placeholders: placeholders,
	}
	if withBody {
		info.Body = tmpl.Body
	}
	return info, nil
}

func listTemplates(out io.Writer, items []*templates.Template) error {
	if IsJSONOutput() {
		infos := make([]TemplateInfo, 0, len(items))
		for _, tmpl := range items {
			info, err := templateInfo(tmpl, false)
			if err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return WriteOutput(out, infos)
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "No templates found.")
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, tmpl := range items {
		rows = append(rows, []string{
			tmpl.Name,
			valueOrDash(tmpl.Event),
			valueOrDash(tmpl.Source),
			valueOrDash(tmpl.Description),
		})
	}
	return writeTable(out, []string{"NAME", "EVENT", "SOURCE", "DESCRIPTION"}, rows)
}

func showTemplate(out io.Writer, tmpl *templates.Template) error {
	info, err := templateInfo(tmpl, true)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return WriteOutput(out, info)
	}

	fmt.Fprintf(out, "Name:        %s\n", info.Name)
	fmt.Fprintf(out, "Event:       %s\n", valueOrDash(info.Event))
	fmt.Fprintf(out, "Source:      %s\n", valueOrDash(info.Source))
	fmt.Fprintf(out, "Description: %s\n", valueOrDash(info.Description))
	if len(info.Tags) > 0 {
		fmt.Fprintf(out, "Tags:        %s\n", strings.Join(info.Tags, ", "))
	}
	fmt.Fprintln(out)

	declared := make(map[string]struct{}, len(tmpl.Variables))
	rows := make([][]string, 0, len(tmpl.Variables)+len(info.Placeholders))
	for _, variable := range tmpl.Variables {
		declared[variable.Name] = struct{}{}
		rows = append(rows, []string{
			variable.Name,
			formatYesNo(variable.Required),
			valueOrDash(variable.Default),
			valueOrDash(variable.Description),
		})
	}
	for _, name := range info.Placeholders {
		if _, ok := declared[name]; ok {
			continue
		}
		rows = append(rows, []string{name, "yes", "-", "-"})
	}
	if err := writeTable(out, []string{"VARIABLE", "REQUIRED", "DEFAULT", "DESCRIPTION"}, rows); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, mutedText("Body:"))
	fmt.Fprint(out, tmpl.Body)
	if !strings.HasSuffix(tmpl.Body, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

func filterTemplates(items []*templates.Template, tags []string) []*templates.Template {
	if len(tags) == 0 {
		return items
	}
	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		wanted[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}

	filtered := make([]*templates.Template, 0, len(items))
	for _, tmpl := range items {
		for _, tag := range tmpl.Tags {
			if _, ok := wanted[strings.ToLower(tag)]; ok {
				filtered = append(filtered, tmpl)
				break
			}
		}
	}
	return filtered
}
