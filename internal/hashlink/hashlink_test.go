package hashlink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kusuridheeraj/sentinel/internal/domain"
)

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)

func TestCompute_KnownAnswer(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]interface{}
		want string
	}{
		{"no context", nil, "3805858071397a3c7fb70a04ec53fe4927053c98f0d14c5ddac7bf1af3cfc8b0"},
		{"with context", map[string]interface{}{"ua": "curl", "ip": "10.0.0.1"}, "f198d3e09bba26e220775385f3bd8b026c4a2d6dc87957f450a2fbaede8f5bde"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", tt.ctx)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compute() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	ctx := map[string]interface{}{"ip": "10.0.0.1", "nested": map[string]interface{}{"z": 1, "a": []interface{}{"x", 2}}}
	first, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", ctx)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		got, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", ctx)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if got != first {
			t.Fatalf("run %d: Compute() = %s, want %s", i, got, first)
		}
	}
	if !IsHash(first) {
		t.Errorf("Compute() = %q is not a 64 char lowercase hex digest", first)
	}
}

func TestCompute_EmptyContextEqualsNil(t *testing.T) {
	a, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", map[string]interface{}{})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("nil context hash %s != empty context hash %s", a, b)
	}
}

func TestCompute_EveryInputChangesDigest(t *testing.T) {
	base, err := Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}

	otherPrev := "1" + domain.GenesisHash[1:]
	variants := map[string]func() (string, error){
		"prev_hash": func() (string, error) {
			return Compute(otherPrev, fixedTime, "u1", "login", "portal", map[string]interface{}{"k": "v"})
		},
		"timestamp": func() (string, error) {
			return Compute(domain.GenesisHash, fixedTime.Add(time.Microsecond), "u1", "login", "portal", map[string]interface{}{"k": "v"})
		},
		"actor": func() (string, error) {
			return Compute(domain.GenesisHash, fixedTime, "u2", "login", "portal", map[string]interface{}{"k": "v"})
		},
		"action": func() (string, error) {
			return Compute(domain.GenesisHash, fixedTime, "u1", "logout", "portal", map[string]interface{}{"k": "v"})
		},
		"resource": func() (string, error) {
			return Compute(domain.GenesisHash, fixedTime, "u1", "login", "portaL", map[string]interface{}{"k": "v"})
		},
		"context": func() (string, error) {
			return Compute(domain.GenesisHash, fixedTime, "u1", "login", "portal", map[string]interface{}{"k": "w"})
		},
	}

	for name, fn := range variants {
		got, err := fn()
		if err != nil {
			t.Fatalf("%s: Compute() error = %v", name, err)
		}
		if got == base {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestCanonicalTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc truncates nanoseconds", fixedTime, "2024-01-02T03:04:05.123456+00:00"},
		{"offset converted to utc", time.Date(2024, 1, 2, 5, 4, 5, 123456000, time.FixedZone("EET", 2*3600)), "2024-01-02T03:04:05.123456+00:00"},
		{"zero fraction keeps precision", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05.000000+00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalTimestamp(tt.in); got != tt.want {
				t.Errorf("CanonicalTimestamp() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalContext(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]interface{}
		want string
	}{
		{"nil", nil, "{}"},
		{"empty", map[string]interface{}{}, "{}"},
		{"sorted keys", map[string]interface{}{"b": 1, "a": map[string]interface{}{"d": "x", "c": true}}, `{"a":{"c":true,"d":"x"},"b":1}`},
		{"no html escaping", map[string]interface{}{"q": "<a&b>"}, `{"q":"<a&b>"}`},
		{"json number kept verbatim", map[string]interface{}{"n": json.Number("1.50")}, `{"n":1.50}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalContext(tt.in)
			if err != nil {
				t.Fatalf("CanonicalContext() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanonicalContext() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalContext_Unserializable(t *testing.T) {
	_, err := CanonicalContext(map[string]interface{}{"ch": make(chan int)})
	if !errors.Is(err, domain.ErrInvalidContext) {
		t.Fatalf("CanonicalContext() error = %v, want ErrInvalidContext", err)
	}
	if !errors.Is(err, domain.ErrInvalidEvent) {
		t.Errorf("ErrInvalidContext should wrap ErrInvalidEvent")
	}
}

func TestComputeEntry_MatchesCompute(t *testing.T) {
	e := &domain.Entry{
		PrevHash:     domain.GenesisHash,
		SequenceTime: fixedTime,
		ActorID:      "u1",
		Action:       "login",
		Resource:     "portal",
	}
	got, err := ComputeEntry(e)
	if err != nil {
		t.Fatal(err)
	}
	if got != "3805858071397a3c7fb70a04ec53fe4927053c98f0d14c5ddac7bf1af3cfc8b0" {
		t.Errorf("ComputeEntry() = %s", got)
	}
}
