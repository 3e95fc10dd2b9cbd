// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ctp-notifications/pkg/registry"
)

const defaultPath = "configs/notification-registry.json"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	setCmd := flag.NewFlagSet("set", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	exportPath := exportCmd.String("path", defaultPath, "Where to write the registry")

	setPath := setCmd.String("path", defaultPath, "Registry file to edit")
	idSet := setCmd.String("id", "", "Definition ID (e.g., offer_status_dealer)")
	field := setCmd.String("field", "", "Field to update (title, body, subject, html, channels, audience, templateKey, topic)")
	value := setCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")
	listPath := listCmd.String("path", "", "Registry override file (empty lists the built-in definitions)")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		reg := registry.Default().Export()
		reg.LastUpdated = time.Now().Format(time.RFC3339)
		if err := registry.Save(reg, *exportPath); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d definitions to %s\n", len(reg.Definitions), *exportPath)

	case "set":
		setCmd.Parse(os.Args[2:])
		if *idSet == "" || *field == "" {
			fmt.Println("Error: id and field are required for set.")
			setCmd.Usage()
			os.Exit(1)
		}
		if err := setField(*setPath, *idSet, *field, *value); err != nil {
			fmt.Printf("Error updating definition: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated definition %s, field %s\n", *idSet, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*validatePath)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d definitions.\n", len(reg.Definitions))

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := registry.Load(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		for _, d := range reg.Definitions() {
			fmt.Printf("%-34s %-10s %-11s %s\n", d.ID, d.Audience, strings.Join(d.Channels, ","), d.NotificationType)
		}

	case "help":
		fallthrough
	default:
		help(os.Stdout)
	}
}

// setField edits one definition in the registry file at path. A definition
// missing from the file is copied from the built-in registry first.
func setField(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.NotificationRegistry{Version: "1.0.0"}
	}

	idx := -1
	for i := range reg.Definitions {
		if reg.Definitions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		def, ok := registry.Default().Lookup(id)
		if !ok {
			return fmt.Errorf("definition with ID %s not found", id)
		}
		reg.Definitions = append(reg.Definitions, def)
		idx = len(reg.Definitions) - 1
	}

	def := &reg.Definitions[idx]
	switch field {
	case "title":
		def.Title = value
	case "body":
		def.Body = value
	case "subject":
		def.Subject = value
	case "html":
		def.HTML = value
	case "description":
		def.Description = value
	case "audience":
		def.Audience = value
	case "templateKey":
		def.TemplateKey = value
	case "topic":
		def.Topic = value
	case "channels":
		def.Channels = strings.Split(value, ",")
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.Save(reg, path)
}

func help(w io.Writer) {
	fmt.Fprint(w, `
Usage: registry-updater <command> [flags]

Commands:
  list     List notification definitions
  export   Write the built-in definitions to a registry file
  set      Change one field of a definition in a registry file
  validate Validate a registry file
  help     Show this help message

Examples:
  registry-updater list
  registry-updater export -path configs/notification-registry.json
  registry-updater set -id offer_status_dealer -field title -value "Offer Update"
  registry-updater set -id offer_paid_admin -field channels -value push
  registry-updater validate -path configs/notification-registry.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
