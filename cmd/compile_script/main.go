// Command compile_script compiles dialogue exchanges into a course script
// without touching the database or any speech provider.
//
//	compile_script -in exchanges.json -lang ja -level N4 > script.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
)

func main() {
	var (
		in       string
		cfgPath  string
		lang     string
		level    string
		narrator string
	)
	flag.StringVar(&in, "in", "-", "exchanges JSON file (array of exchanges), - for stdin")
	flag.StringVar(&cfgPath, "config", "", "script config JSON; defaults to the preset for -lang/-level")
	flag.StringVar(&lang, "lang", "ja", "target language")
	flag.StringVar(&level, "level", "", "proficiency level")
	flag.StringVar(&narrator, "narrator", "", "narrator voice id override")
	flag.Parse()

	exchanges, err := readExchanges(in)
	if err != nil {
		fail("read exchanges: %v", err)
	}

	cfg, err := loadConfig(cfgPath, lang, level)
	if err != nil {
		fail("script config: %v", err)
	}
	if narrator != "" {
		cfg.NarratorVoiceID = narrator
	}

	snap, err := stages.AdvanceToScript(
		stages.ExchangesSnapshot{Exchanges: exchanges},
		1,
		stages.ConfigSnapshot{Config: cfg},
		cfg.Version,
	)
	if err != nil {
		fail("compile: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		fail("write script: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%d units, ~%.1fs\n", len(snap.Units), snap.EstimatedDurationSeconds)
}

func readExchanges(path string) ([]courses.DialogueExchange, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var out []courses.DialogueExchange
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadConfig(path, lang, level string) (courses.ScriptConfig, error) {
	if path == "" {
		return scriptcfg.BuildDefault(lang, level)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return courses.ScriptConfig{}, err
	}
	var cfg courses.ScriptConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return courses.ScriptConfig{}, err
	}
	return cfg, scriptcfg.Validate(cfg)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
