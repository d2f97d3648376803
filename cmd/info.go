package cmd

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/xlrbridge/internal/channel"
	"github.com/audiolibrelab/xlrbridge/internal/config"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and endpoint identifiers",
	Long:  `Display the resolved configuration with inheritance indicators and the endpoint identifiers the session will look up. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := flatten(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("=== ENDPOINTS ===\n")
		for _, d := range channel.Directions {
			t := channel.For(d)
			for _, id := range t.All() {
				fmt.Printf("%s.%s: %s\n", d, t.Label(id), t.EndpointUID(cfg.Endpoints.Prefix, id))
			}
		}

		fmt.Printf("\n=== RESOLVED CONFIGURATION (profile %s) ===\n", cfg.Profile)
		section := ""
		for _, key := range config.Keys() {
			group, name, _ := strings.Cut(key, ".")
			if group != section {
				section = group
				fmt.Printf("\n[%s]\n", strings.ToUpper(group[:1])+group[1:])
			}
			fmt.Printf("%s: %s %s\n", name, values[key], getInheritanceIndicator(cfg.Inheritance[key]))
		}
		return nil
	},
}

// flatten renders cfg as dotted keys using its yaml field names.
func flatten(c *config.Config) (map[string]string, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	var tree map[string]map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("error reading config back: %w", err)
	}
	out := make(map[string]string)
	for group, fields := range tree {
		for name, v := range fields {
			out[group+"."+name] = formatValue(v)
		}
	}
	out["hardware.vendor_id"] = fmt.Sprintf("0x%04x", c.Hardware.VendorID)
	ids := make([]string, len(c.Hardware.ProductIDs))
	for i, id := range c.Hardware.ProductIDs {
		ids[i] = fmt.Sprintf("0x%04x", id)
	}
	out["hardware.product_ids"] = "[" + strings.Join(ids, ", ") + "]"
	// unset means claim
	out["hardware.exclusive"] = fmt.Sprint(c.Hardware.ExclusiveAccess())
	return out, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return `""`
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	case "global":
		return "[global]"
	default:
		return "[default]"
	}
}
