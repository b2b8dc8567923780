package flagx

import (
	"os"
	"reflect"
	"testing"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-a", ":8080", "-x", "junk"},
			allowed: []string{"-a"},
			want:    []string{"-a", ":8080"},
		},
		{
			name:    "equals form",
			args:    []string{"--database=postgres://x", "-a=:9090"},
			allowed: []string{"-a"},
			want:    []string{"-a=:9090"},
		},
		{
			name:    "flag without value followed by another flag",
			args:    []string{"-a", "-d", "dsn"},
			allowed: []string{"-a", "-d"},
			want:    []string{"-a", "-d", "dsn"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "x"},
			allowed: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"test", "-c", "conf.json", "-a", ":8080"}
	if got := JsonConfigFlags(); got != "conf.json" {
		t.Fatalf("want conf.json, got %q", got)
	}

	os.Args = []string{"test", "-a", ":8080"}
	if got := JsonConfigFlags(); got != "" {
		t.Fatalf("want empty path, got %q", got)
	}
}
