package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/wcdata/internal/api"
	"github.com/kalambet/wcdata/internal/config"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
	"github.com/kalambet/wcdata/internal/storage"
	"github.com/kalambet/wcdata/internal/wcapi"
)

// useTestAPI points the data commands at a dev REST server backed by an
// in-memory store.
func useTestAPI(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRESTHandler(api.RESTDeps{Store: store}))
	t.Cleanup(srv.Close)

	old := newRegistry
	newRegistry = func() (*resolver.Registry, error) {
		return resolver.NewRegistry(wcapi.New(srv.URL, wcapi.Options{}))
	}
	t.Cleanup(func() { newRegistry = old })
	return store
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseAssignments(t *testing.T) {
	q, err := parseAssignments([]string{"status=draft", "page=2", "include[]=1", "include[]=3", "meta[color]=red", "search="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := querykey.Query{
		"status":  "draft",
		"page":    2,
		"include": []any{1, 3},
		"meta":    map[string]any{"color": "red"},
		"search":  "",
	}
	if !querykey.Equal(q, want) {
		t.Errorf("query = %v, want %v", q, want)
	}

	if _, err := parseAssignments([]string{"status"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseAssignments([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestRegistryFor_AllowedResources(t *testing.T) {
	cfg := config.Config{API: config.APIConfig{BaseURL: "http://localhost:4000", Resources: " products, orders ,"}}
	reg, err := registryFor(cfg)
	if err != nil {
		t.Fatalf("registryFor: %v", err)
	}
	if _, err := reg.Resolver("orders"); err != nil {
		t.Errorf("orders: %v", err)
	}
	if _, err := reg.Resolver("customers"); !errors.Is(err, resolver.ErrResourceNotAllowed) {
		t.Errorf("customers: err = %v, want ErrResourceNotAllowed", err)
	}

	cfg.API.Resources = "../users"
	if _, err := registryFor(cfg); !errors.Is(err, resolver.ErrInvalidResource) {
		t.Errorf("err = %v, want ErrInvalidResource", err)
	}
}

func TestGetCommand_InvalidResource(t *testing.T) {
	useTestAPI(t)

	_, err := execute(t, "get", "../../wp/v2/users", "1")
	if !errors.Is(err, resolver.ErrInvalidResource) {
		t.Fatalf("err = %v, want ErrInvalidResource", err)
	}
}

func TestKeyCommand(t *testing.T) {
	out, err := execute(t, "key", "status=draft", "page=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{\"page\":1,\"status\":\"draft\"}\n" {
		t.Errorf("out = %q", out)
	}

	out, err = execute(t, "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{}\n" {
		t.Errorf("empty query out = %q", out)
	}
}

func TestKeyCommand_Path(t *testing.T) {
	defer keyCmd.Flags().Set("path", "")

	out, err := execute(t, "key", "--path", "/wc/v3/products", "include[]=4", "include[]=5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("out = %q, want two lines", out)
	}
	if lines[1] != "/wc/v3/products?include%5B%5D=4&include%5B%5D=5" {
		t.Errorf("path = %q", lines[1])
	}
}

func TestGetCommand(t *testing.T) {
	store := useTestAPI(t)
	if _, err := store.CreateRecord(context.Background(), "products", map[string]any{"name": "Hat"}); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "get", "products", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var item map[string]any
	if err := json.Unmarshal([]byte(out), &item); err != nil {
		t.Fatalf("output parse error: %v", err)
	}
	if item["name"] != "Hat" {
		t.Errorf("item = %v", item)
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	useTestAPI(t)

	_, err := execute(t, "get", "products", "9")
	var he *wcapi.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestListCommand(t *testing.T) {
	store := useTestAPI(t)
	for _, status := range []string{"publish", "draft", "publish"} {
		if _, err := store.CreateRecord(context.Background(), "products", map[string]any{"status": status}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := execute(t, "list", "products", "status=publish", "orderby=id", "order=asc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("output parse error: %v", err)
	}
	if len(items) != 2 || items[0]["id"] != float64(1) || items[1]["id"] != float64(3) {
		t.Errorf("items = %v", items)
	}

	if _, err := execute(t, "list", "products", "status"); err == nil {
		t.Error("expected error for malformed argument")
	}
}

func TestWriteCommands(t *testing.T) {
	store := useTestAPI(t)
	ctx := context.Background()

	out, err := execute(t, "create", "products", "name=Hat", "regular_price=9.99")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("output parse error: %v", err)
	}
	if created["id"] != float64(1) || created["regular_price"] != "9.99" {
		t.Errorf("created = %v", created)
	}

	if _, err := execute(t, "update", "products", "1", "name=Cap"); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, err := store.GetRecord(ctx, "products", 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fields["name"] != "Cap" {
		t.Errorf("stored name = %v", rec.Fields["name"])
	}

	if _, err := execute(t, "delete", "products", "1"); err == nil {
		t.Error("delete without --force should fail")
	}
	if _, err := execute(t, "delete", "products", "1", "--force"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deleteCmd.Flags().Set("force", "false")
	if _, err := store.GetRecord(ctx, "products", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record still stored: %v", err)
	}
}

func TestCommandArgs(t *testing.T) {
	cases := [][]string{
		{"get", "products"},
		{"create", "products"},
		{"update", "products", "1"},
		{"delete", "products"},
	}
	for _, args := range cases {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected argument error", args)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
