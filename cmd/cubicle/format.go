package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/tui"
)

func parsePackages(raw string) []model.PackageRef {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var refs []model.PackageRef
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		refs = append(refs, model.ParseRef(part))
	}
	return refs
}

type envRow struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	HomeDir  string   `json:"home_dir"`
	WorkDir  string   `json:"work_dir"`
	Packages []string `json:"packages"`
}

func printEnvironmentsContext(ctx context.Context, w io.Writer, format string, envs []model.TargetEnvironment) error {
	rows := make([]envRow, len(envs))
	for i, e := range envs {
		rows[i] = envRow{
			Name:     string(e.Name),
			State:    e.State.String(),
			HomeDir:  e.HomeDir,
			WorkDir:  e.WorkDir,
			Packages: e.Packages,
		}
	}

	switch format {
	case "names", "":
		if format == "" {
			format = "default"
		}
		if format == "names" {
			for _, r := range rows {
				fmt.Fprintln(w, r.Name)
			}
			return nil
		}
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Fprintln(w, tui.HostSummary(ctx))
	headers := []string{"NAME", "STATE", "PACKAGES"}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{r.Name, tui.StateLabel(strings.ToUpper(r.State)), strings.Join(r.Packages, ",")}
	}
	fmt.Fprintln(w, tui.Render(headers, table))
	return nil
}

type packageRow struct {
	Name         string   `json:"name"`
	Depends      []string `json:"depends"`
	BuildDepends []string `json:"build_depends"`
	PackageManager bool   `json:"package_manager"`
	Origin       string   `json:"origin"`
}

func printPackages(w io.Writer, format string, defs []model.Definition) error {
	rows := make([]packageRow, len(defs))
	for i, d := range defs {
		rows[i] = packageRow{
			Name:           d.Name,
			Depends:        refStrings(d.Manifest.DependsRefs()),
			BuildDepends:   refStrings(d.Manifest.BuildDependsRefs()),
			PackageManager: d.IsPackageManager,
			Origin:         d.Origin.RootName,
		}
	}

	switch format {
	case "names":
		for _, r := range rows {
			fmt.Fprintln(w, r.Name)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	headers := []string{"NAME", "DEPENDS", "BUILD_DEPENDS", "ORIGIN"}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{r.Name, strings.Join(r.Depends, ","), strings.Join(r.BuildDepends, ","), r.Origin}
	}
	fmt.Fprintln(w, tui.Render(headers, table))
	return nil
}

func refStrings(refs []model.PackageRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}
