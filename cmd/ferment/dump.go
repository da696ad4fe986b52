package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"ferment/internal/compose"
	"ferment/internal/driver"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Analyze the package and print the composed mirrors without writing",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

func init() {
	addPipelineFlags(dumpCmd)
	dumpCmd.Flags().String("format", "json", "output format (json|msgpack)")
	dumpCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	dumpCmd.Flags().Bool("with-notes", true, "include diagnostic notes")
}

// fermentateDump is the serialisable view of a composed fermentate.
type fermentateDump struct {
	Crate     string         `json:"crate" msgpack:"crate"`
	ModName   string         `json:"mod_name" msgpack:"mod_name"`
	Items     []mirrorDump   `json:"items" msgpack:"items"`
	Generics  []mirrorDump   `json:"generics" msgpack:"generics"`
	Functions []functionDump `json:"functions" msgpack:"functions"`
	Files     []string       `json:"files" msgpack:"files"`
}

type mirrorDump struct {
	Key      string        `json:"key" msgpack:"key"`
	Name     string        `json:"name" msgpack:"name"`
	Module   string        `json:"module,omitempty" msgpack:"module,omitempty"`
	Strategy string        `json:"strategy" msgpack:"strategy"`
	Tags     []tagDump     `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Plan     []stepDump    `json:"plan,omitempty" msgpack:"plan,omitempty"`
	Bindings []bindingDump `json:"bindings" msgpack:"bindings"`
	Deps     []string      `json:"deps,omitempty" msgpack:"deps,omitempty"`
}

type tagDump struct {
	Name  string `json:"name" msgpack:"name"`
	Value uint32 `json:"value" msgpack:"value"`
}

type stepDump struct {
	Slot     string `json:"slot" msgpack:"slot"`
	CType    string `json:"ctype" msgpack:"ctype"`
	Conv     string `json:"conv" msgpack:"conv"`
	Restores bool   `json:"restores" msgpack:"restores"`
	Releases bool   `json:"releases" msgpack:"releases"`
}

type bindingDump struct {
	Name   string   `json:"name" msgpack:"name"`
	Params []string `json:"params" msgpack:"params"`
	Ret    string   `json:"ret,omitempty" msgpack:"ret,omitempty"`
}

type functionDump struct {
	Path    string      `json:"path" msgpack:"path"`
	Module  string      `json:"module" msgpack:"module"`
	Binding bindingDump `json:"binding" msgpack:"binding"`
}

func runDump(cmd *cobra.Command, args []string) (err error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "json" && format != "msgpack" {
		return fmt.Errorf("unknown format %q (expected json|msgpack)", format)
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if format == "msgpack" && output == "" && isTerminal(os.Stdout) {
		return fmt.Errorf("refusing to write msgpack to a terminal; use --output")
	}
	b, err := loadBuilder(cmd)
	if err != nil {
		return err
	}
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { cleanup(err != nil) }()

	res, runErr := driver.Run(cmd.Context(), b.Options(), driver.ModeAnalyze)
	if err := reportDiagnostics(cmd, res, "pretty"); err != nil {
		return err
	}
	printTimings(cmd, res)
	if runErr != nil {
		if res != nil && res.Bag.HasErrors() {
			return errReported
		}
		return runErr
	}

	var out io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		out = f
	}
	return encodeDump(out, newDump(res), format)
}

func encodeDump(w io.Writer, d fermentateDump, format string) error {
	if format == "msgpack" {
		return msgpack.NewEncoder(w).Encode(d)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func newDump(res *driver.Result) fermentateDump {
	f := res.Fermentate
	d := fermentateDump{Crate: f.Crate, ModName: f.ModName}
	for _, i := range f.Items {
		d.Items = append(d.Items, mirrorOf(i))
	}
	for _, i := range f.Generics {
		d.Generics = append(d.Generics, mirrorOf(i))
	}
	for _, fn := range f.Functions {
		d.Functions = append(d.Functions, functionDump{
			Path:    fn.Path.String(),
			Module:  fn.Module.String(),
			Binding: bindingOf(fn.Binding),
		})
	}
	for _, file := range res.Output {
		d.Files = append(d.Files, file.Path)
	}
	return d
}

func mirrorOf(i *compose.Info) mirrorDump {
	m := mirrorDump{
		Key:      i.Key,
		Name:     i.Name,
		Strategy: i.Strategy.String(),
		Deps:     i.Deps,
	}
	if !i.Generic() {
		m.Module = i.Module.String()
	}
	for _, t := range i.Tags {
		m.Tags = append(m.Tags, tagDump{Name: t.Name, Value: t.Value})
	}
	for _, s := range i.Plan {
		m.Plan = append(m.Plan, stepDump{
			Slot:     s.Slot,
			CType:    s.CType,
			Conv:     s.Conv.String(),
			Restores: s.Restores,
			Releases: s.Releases,
		})
	}
	for _, b := range i.Bindings {
		m.Bindings = append(m.Bindings, bindingOf(b))
	}
	return m
}

func bindingOf(b compose.Binding) bindingDump {
	out := bindingDump{Name: b.Name, Ret: b.Ret, Params: []string{}}
	for _, p := range b.Params {
		out.Params = append(out.Params, p.Name+": "+p.Type)
	}
	return out
}
