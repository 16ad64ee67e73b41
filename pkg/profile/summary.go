package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

// Supported summary output formats.
const (
	SummaryFormatText = "text"
	SummaryFormatJSON = "json"
)

// FormatSummary renders a profile resolution summary in the requested format.
func FormatSummary(res *Resolution, format string) (string, error) {
	if res == nil {
		return "", fmt.Errorf("resolution is nil")
	}

	switch strings.ToLower(format) {
	case "", SummaryFormatText:
		return formatSummaryText(res)
	case SummaryFormatJSON:
		return formatSummaryJSON(res)
	default:
		return "", fmt.Errorf("unsupported summary format %q", format)
	}
}

func formatSummaryText(res *Resolution) (string, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Profile:\t%s\n", res.Profile)
	if len(res.Warnings) > 0 {
		warnings := make([]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			warnings = append(warnings, w.String())
		}
		fmt.Fprintf(tw, "Warnings:\t%s\n", strings.Join(warnings, ", "))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Layer\tKind\tFiles")
	for _, layer := range res.Layers {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", layer.Ref, layer.Kind, len(layer.Files))
	}

	if res.Merged != nil {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Key\tLayer")
		paths := make([]string, 0, len(res.Merged.Provenance))
		for path := range res.Merged.Provenance {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(tw, "%s\t%s\n", path, res.Merged.Provenance[path])
		}
		for _, override := range res.Merged.Overrides {
			fmt.Fprintf(tw, "%s\toverrides %s\n", override.Winner, strings.Join(override.Shadowed, ", "))
		}
	}

	if err := tw.Flush(); err != nil {
		return "", fmt.Errorf("flush summary: %w", err)
	}
	return buf.String(), nil
}

func formatSummaryJSON(res *Resolution) (string, error) {
	type layerEntry struct {
		Ref   string   `json:"ref"`
		Kind  RefKind  `json:"kind"`
		Files []string `json:"files"`
	}

	payload := map[string]any{
		"profile": res.Profile,
	}

	layers := make([]layerEntry, 0, len(res.Layers))
	for _, layer := range res.Layers {
		layers = append(layers, layerEntry{Ref: layer.Ref, Kind: layer.Kind, Files: layer.Files})
	}
	payload["layers"] = layers

	if len(res.Warnings) > 0 {
		warnings := make([]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			warnings = append(warnings, w.String())
		}
		payload["warnings"] = warnings
	}

	if res.Merged != nil {
		payload["provenance"] = res.Merged.Provenance
		payload["overrides"] = res.Merged.Overrides
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return buf.String(), nil
}
