package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/example/cenv/internal/cenv"
	"github.com/example/cenv/internal/cenv/config"
	"github.com/example/cenv/internal/cenv/domain"
	"github.com/example/cenv/internal/cenv/paths"
	"github.com/example/cenv/internal/cenv/process"
)

func init() {
	color.NoColor = true
}

type stubPrompter struct {
	selectValue  string
	promptValue  string
	confirmValue bool
	err          error
}

func (s *stubPrompter) Select(label string, items []string, defaultValue string) (int, string, error) {
	if s.err != nil {
		return 0, "", s.err
	}
	for i, item := range items {
		if item == s.selectValue {
			return i, item, nil
		}
	}
	return 0, "", fmt.Errorf("stub: %q not offered in %v", s.selectValue, items)
}

func (s *stubPrompter) Prompt(label string) (string, error) {
	return s.promptValue, s.err
}

func (s *stubPrompter) Confirm(label string, defaultYes bool) (bool, error) {
	return s.confirmValue, s.err
}

type stubCloner struct{ err error }

func (s *stubCloner) Clone(url, target string) error {
	if s.err != nil {
		return s.err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(target, "settings.json"), []byte("{}\n"), 0o644)
}

type stubPublisher struct {
	envPath string
	url     string
	warns   []string
	err     error
}

func (s *stubPublisher) Publish(envPath, url, claudeHome, userHome string) ([]string, error) {
	s.envPath = envPath
	s.url = url
	return s.warns, s.err
}

type cliFixture struct {
	store     *cenv.Store
	resolver  *paths.Resolver
	publisher *stubPublisher
	prompter  *stubPrompter
}

func newFixture(t *testing.T) *cliFixture {
	t.Helper()
	home := t.TempDir()

	cfg := config.Default()
	cfg.LockFileName = fmt.Sprintf("cenv-cli-test-%d-%s.lock", os.Getpid(), filepath.Base(home))

	resolver := paths.New(home)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	oracle := process.OracleFunc(func() bool { return false })
	store, err := cenv.NewStore(afero.NewOsFs(), resolver, cfg, oracle, &stubCloner{}, log)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	return &cliFixture{
		store:     store,
		resolver:  resolver,
		publisher: &stubPublisher{},
		prompter:  &stubPrompter{},
	}
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(f.store, f.publisher, f.prompter, &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func (f *cliFixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.run(t, args...)
	if err != nil {
		t.Fatalf("cenv %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestInitCommand(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun(t, "init")
	if !strings.Contains(out, "Initialized cenv successfully!") {
		t.Errorf("init output = %q", out)
	}
	if _, err := os.Lstat(f.resolver.ActiveLink()); err != nil {
		t.Errorf("active link missing after init: %v", err)
	}
}

func TestListMarksActiveEnvironment(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")

	out := f.mustRun(t, "list")
	if !strings.Contains(out, "* default") {
		t.Errorf("list output missing active marker: %q", out)
	}
	if !strings.Contains(out, "  work") {
		t.Errorf("list output missing inactive entry: %q", out)
	}
}

func TestListBeforeInit(t *testing.T) {
	f := newFixture(t)

	out := f.mustRun(t, "list")
	if !strings.Contains(out, "Run 'cenv init' first") {
		t.Errorf("list output = %q", out)
	}
}

func TestUseSwitchesAndReportsCurrent(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")
	f.mustRun(t, "use", "work")

	out := f.mustRun(t, "current")
	if strings.TrimSpace(out) != "work" {
		t.Errorf("current output = %q, want work", out)
	}
}

func TestUsePromptsWhenNoArgument(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")
	f.prompter.selectValue = "work"

	out := f.mustRun(t, "use")
	if !strings.Contains(out, "Switched to environment 'work'") {
		t.Errorf("use output = %q", out)
	}
}

func TestCreateFromRepo(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")

	out := f.mustRun(t, "create", "imported", "--from-repo", "https://github.com/alice/claude-config")
	if !strings.Contains(out, "Created environment 'imported'") {
		t.Errorf("create output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(f.resolver.EnvPath("imported"), "settings.json")); err != nil {
		t.Errorf("imported environment missing cloned file: %v", err)
	}
}

func TestDeleteDeclinedLeavesEnvironment(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")
	f.prompter.confirmValue = false

	out := f.mustRun(t, "delete", "work")
	if !strings.Contains(out, "Delete cancelled.") {
		t.Errorf("delete output = %q", out)
	}
	exists, err := f.store.Exists("work")
	if err != nil || !exists {
		t.Errorf("environment removed despite cancelled confirmation (exists=%v, err=%v)", exists, err)
	}
}

func TestDeleteTrashRestoreFlow(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")

	out := f.mustRun(t, "delete", "work", "--yes")
	if !strings.Contains(out, "Moved environment 'work' to trash") {
		t.Errorf("delete output = %q", out)
	}

	out = f.mustRun(t, "trash")
	if !strings.Contains(out, "work-") {
		t.Errorf("trash output = %q", out)
	}

	entries, err := f.store.ListTrash()
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListTrash = %v, %v", entries, err)
	}

	out = f.mustRun(t, "restore", entries[0].BackupName)
	if !strings.Contains(out, "Restored environment 'work'") {
		t.Errorf("restore output = %q", out)
	}
	exists, _ := f.store.Exists("work")
	if !exists {
		t.Error("environment missing after restore")
	}
}

func TestRestorePromptsFromTrash(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")
	f.mustRun(t, "delete", "work", "--yes")

	entries, err := f.store.ListTrash()
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListTrash = %v, %v", entries, err)
	}
	f.prompter.selectValue = entries[0].BackupName

	out := f.mustRun(t, "restore")
	if !strings.Contains(out, "Restored environment 'work'") {
		t.Errorf("restore output = %q", out)
	}
}

func TestDeleteRefusesDefault(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")

	_, err := f.run(t, "delete", "default", "--yes")
	var protected *domain.ProtectedEnvironmentError
	if !errors.As(err, &protected) {
		t.Errorf("delete default error = %v, want ProtectedEnvironmentError", err)
	}
}

func TestPublishDefaultsToActiveEnvironment(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.mustRun(t, "create", "work")
	f.mustRun(t, "use", "work")
	f.publisher.warns = []string{"settings.json: /opt/custom/bin"}

	out := f.mustRun(t, "publish", "https://github.com/alice/claude-config")
	if f.publisher.envPath != f.resolver.EnvPath("work") {
		t.Errorf("published %q, want the active environment", f.publisher.envPath)
	}
	if !strings.Contains(out, "non-portable path: settings.json: /opt/custom/bin") {
		t.Errorf("publish output missing warning: %q", out)
	}
	if !strings.Contains(out, "Published environment 'work'") {
		t.Errorf("publish output = %q", out)
	}
}

func TestPublishNamedEnvironmentPromptsForURL(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")
	f.prompter.promptValue = "  https://github.com/alice/claude-config  "

	f.mustRun(t, "publish", "--env", "default")
	if f.publisher.url != "https://github.com/alice/claude-config" {
		t.Errorf("published url = %q, want trimmed prompt value", f.publisher.url)
	}
}

func TestPublishUnknownEnvironment(t *testing.T) {
	f := newFixture(t)
	f.mustRun(t, "init")

	_, err := f.run(t, "publish", "--env", "ghost", "https://github.com/alice/x")
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) || notFound.Name != "ghost" {
		t.Errorf("publish error = %v, want NotFoundError for ghost", err)
	}
}

func TestRenderErrorHints(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "environment not found",
			err:  &domain.NotFoundError{Name: "ghost"},
			want: "Run 'cenv list'",
		},
		{
			name: "backup not found",
			err:  &domain.NotFoundError{Name: "ghost-20240101-120000", Kind: "backup"},
			want: "Run 'cenv trash'",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderError(tc.err)
			if !strings.Contains(got, tc.want) {
				t.Errorf("RenderError = %q, want hint %q", got, tc.want)
			}
		})
	}

	plain := RenderError(errors.New("boom"))
	if strings.Contains(plain, "Run 'cenv") {
		t.Errorf("RenderError added a hint to a generic error: %q", plain)
	}
}
