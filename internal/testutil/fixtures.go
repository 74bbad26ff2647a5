package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteFiles writes files (name → content) into a fresh temporary
// directory and returns it. Names may contain subdirectories.
func WriteFiles(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return dir
}

// GreetingRules is a small rule package: every Person gets a Greeting,
// and every Greeting is written out as a File.
const GreetingRules = `package rules

record: Person: fields: {name: string, age: int}
record: Greeting: fields: {text: string, to: "Person"}
record: File: {
	output: true
	fields: {path: string, content: string}
}

rule: Greet: {
	when: [{type: "Person", bind: "p"}]
	then: """
		insert("Greeting", {text: "Hello, " + p.name, to: ref(p)});
		"""
}

rule: Publish: {
	when: [{type: "Greeting", bind: "g"}]
	then: """
		insert("File", {path: "greetings/" + g.$id + ".txt", content: g.text});
		"""
}

facts: [
	{type: "Person", fields: {name: "Ada", age: 36}},
]
`
