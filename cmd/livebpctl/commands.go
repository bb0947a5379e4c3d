package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/deepdev237/LivePrint/internal/domain/diagnostics"
	"github.com/deepdev237/LivePrint/internal/domain/journal"
	"github.com/deepdev237/LivePrint/internal/domain/protocol"
	"github.com/deepdev237/LivePrint/internal/domain/session"
	"github.com/deepdev237/LivePrint/internal/domain/throttle"
	"github.com/deepdev237/LivePrint/internal/manifest"
)

func newFlags(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.err)
	return fs
}

func parse(fs *flag.FlagSet, args []string, maxArgs int) error {
	if err := fs.Parse(args); err != nil || fs.NArg() > maxArgs {
		return errUsage
	}
	return nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatTime(ts float64) string {
	if ts <= 0 {
		return "-"
	}
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9)).Format("15:04:05.000")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "0", "disable", "disabled":
		return false, nil
	}
	return false, errUsage
}

func runStats(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags(e, "stats"), args, 0); err != nil {
		return err
	}
	var res struct {
		Stats session.Stats `json:"stats"`
	}
	if err := e.api.get(ctx, "/api/stats", nil, &res); err != nil {
		return err
	}
	printStats(e.out, res.Stats)
	return nil
}

func printStats(w io.Writer, s session.Stats) {
	tw := table(w)
	fmt.Fprintf(tw, "Session\t%s\n", s.SessionID)
	fmt.Fprintf(tw, "Collaboration\t%s\n", onOff(s.Enabled))
	fmt.Fprintf(tw, "Debug\t%s\n", onOff(s.Debug))
	fmt.Fprintf(tw, "Simulated latency\t%dms\n", s.SimulatedLatencyMs)
	fmt.Fprintf(tw, "Users\t%d %s\n", len(s.Users), strings.Join(s.Users, ", "))
	fmt.Fprintf(tw, "Active locks\t%d\n", s.ActiveLocks)
	fmt.Fprintf(tw, "Open blueprints\t%d\n", s.TrackedBlueprints)
	fmt.Fprintf(tw, "Journal entries\t%d\n", s.JournalEntries)
	fmt.Fprintf(tw, "Relayed\t%d\n", s.Relayed)
	for _, reason := range sortedKeys(s.Dropped) {
		fmt.Fprintf(tw, "Dropped (%s)\t%d\n", reason, s.Dropped[reason])
	}
	p := s.Performance
	fmt.Fprintf(tw, "Messages/s\t%.1f\n", p.MessagesPerSecond)
	fmt.Fprintf(tw, "Latency avg/peak\t%.1fms / %.1fms\n", p.AverageLatencyMs, p.PeakLatencyMs)
	fmt.Fprintf(tw, "Errors\t%d (failure rate %.1f%%)\n", p.TotalErrors, p.MessageFailureRate*100)
	tw.Flush()

	if len(s.Throttle) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = table(w)
	fmt.Fprintln(tw, "TYPE\tSENT\tTHROTTLED")
	for _, t := range sortedKeys(s.Throttle) {
		st := s.Throttle[t]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", t, st.Sent, st.Throttled)
	}
	tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runReport(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags(e, "report"), args, 0); err != nil {
		return err
	}
	resp, err := e.api.request(ctx).SetHeader("Accept", "text/plain").Get("/api/report")
	if err := check(resp, err); err != nil {
		return err
	}
	fmt.Fprintln(e.out, strings.TrimRight(resp.String(), "\n"))
	return nil
}

func runUsers(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags(e, "users"), args, 0); err != nil {
		return err
	}
	var res struct {
		Users []session.UserInfo `json:"users"`
	}
	if err := e.api.get(ctx, "/api/users", nil, &res); err != nil {
		return err
	}
	if len(res.Users) == 0 {
		fmt.Fprintln(e.out, "No users connected")
		return nil
	}
	tw := table(e.out)
	fmt.Fprintln(tw, "USER\tNAME\tJOINED\tLAST SEEN\tQUEUE\tDROPPED")
	for _, u := range res.Users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			u.UserID, u.DisplayName, formatTime(u.JoinedAt), formatTime(u.LastSeen), u.QueueDepth, u.Dropped)
	}
	return tw.Flush()
}

func runLocks(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "locks")
	user := fs.String("user", "", "Only locks held by this user")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	var res struct {
		Locks []protocol.NodeLock `json:"locks"`
	}
	if err := e.api.get(ctx, "/api/locks", map[string]string{"user": *user}, &res); err != nil {
		return err
	}
	if len(res.Locks) == 0 {
		fmt.Fprintln(e.out, "No active locks")
		return nil
	}
	tw := table(e.out)
	fmt.Fprintln(tw, "NODE\tUSER\tSTATE\tLOCKED\tEXPIRES")
	for _, l := range res.Locks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			l.NodeID, l.UserID, l.State, formatTime(l.LockTime), formatTime(l.ExpiryTime))
	}
	return tw.Flush()
}

func runClearLocks(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "clear-locks")
	user := fs.String("user", "", "Only release this user's locks")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	var res struct {
		Cleared int `json:"cleared"`
	}
	query := map[string]string{"user": *user}
	if err := e.api.send(ctx, http.MethodDelete, "/api/locks", query, nil, &res); err != nil {
		return err
	}
	if *user != "" {
		fmt.Fprintf(e.out, "Released %d lock(s) held by %s\n", res.Cleared, *user)
	} else {
		fmt.Fprintf(e.out, "Released %d lock(s)\n", res.Cleared)
	}
	return nil
}

func runLatency(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "latency")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	var res struct {
		LatencyMs int64 `json:"latency_ms"`
	}
	if fs.NArg() == 0 {
		if err := e.api.get(ctx, "/api/latency", nil, &res); err != nil {
			return err
		}
	} else {
		ms, err := strconv.ParseInt(strings.TrimSuffix(fs.Arg(0), "ms"), 10, 64)
		if err != nil {
			return errUsage
		}
		body := map[string]int64{"latency_ms": ms}
		if err := e.api.send(ctx, http.MethodPut, "/api/latency", nil, body, &res); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.out, "Simulated latency: %dms\n", res.LatencyMs)
	return nil
}

func runDebug(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "debug")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	var res struct {
		Debug bool `json:"debug"`
	}
	if fs.NArg() == 0 {
		if err := e.api.get(ctx, "/api/debug", nil, &res); err != nil {
			return err
		}
	} else {
		on, err := parseOnOff(fs.Arg(0))
		if err != nil {
			return err
		}
		if err := e.api.send(ctx, http.MethodPut, "/api/debug", nil, map[string]bool{"enabled": on}, &res); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.out, "Debug mode: %s\n", onOff(res.Debug))
	return nil
}

func runCollab(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "collab")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	var res struct {
		Enabled bool `json:"enabled"`
	}
	var err error
	switch arg := fs.Arg(0); arg {
	case "":
		err = e.api.get(ctx, "/api/session", nil, &res)
	case "toggle":
		err = e.api.send(ctx, http.MethodPost, "/api/collaboration/toggle", nil, nil, &res)
	default:
		on, perr := parseOnOff(arg)
		if perr != nil {
			return perr
		}
		err = e.api.send(ctx, http.MethodPut, "/api/collaboration", nil, map[string]bool{"enabled": on}, &res)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Collaboration: %s\n", onOff(res.Enabled))
	return nil
}

func runMessages(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "messages")
	limit := fs.Int("limit", 50, "Newest N messages")
	since := fs.Float64("since", 0, "Messages recorded at or after this Unix time")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	query := map[string]string{"limit": strconv.Itoa(*limit)}
	if *since > 0 {
		query = map[string]string{"since": strconv.FormatFloat(*since, 'f', -1, 64)}
	}
	var res struct {
		Messages []journal.Entry `json:"messages"`
		Capacity int             `json:"capacity"`
	}
	if err := e.api.get(ctx, "/api/messages", query, &res); err != nil {
		return err
	}
	if len(res.Messages) == 0 {
		fmt.Fprintln(e.out, "No messages")
		return nil
	}
	tw := table(e.out)
	fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tUSER\tBLUEPRINT\tBYTES")
	for _, m := range res.Messages {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
			m.Seq, formatTime(m.Message.Timestamp), m.Message.Type, m.Message.UserID,
			m.Message.BlueprintID, len(m.Message.Payload))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d message(s), journal capacity %d\n", len(res.Messages), res.Capacity)
	return nil
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "export")
	outPath := fs.String("o", "", "Output file (default: name suggested by the hub; - for stdout)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	resp, err := e.api.request(ctx).
		SetHeader("Accept", "application/zstd").
		SetDoNotParseResponse(true).
		Get("/api/export")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return fmt.Errorf("%s", resp.Status())
	}

	path := *outPath
	if path == "" {
		path = exportName(resp.Header().Get("Content-Disposition"))
	}
	var w io.Writer = e.out
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if path != "-" {
		fmt.Fprintf(e.err, "Wrote %d bytes to %s\n", n, path)
	}
	return nil
}

// exportName picks the file name from a Content-Disposition header.
func exportName(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return "livebp-journal.ndjson.zst"
}

func runSelfTest(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "selftest")
	list := fs.Bool("list", false, "List the available tests")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	if *list {
		var res struct {
			Tests []string `json:"tests"`
		}
		if err := e.api.get(ctx, "/api/selftest", nil, &res); err != nil {
			return err
		}
		for _, t := range res.Tests {
			fmt.Fprintln(e.out, t)
		}
		return nil
	}

	var res struct {
		Success bool               `json:"success"`
		Report  diagnostics.Report `json:"report"`
		Text    string             `json:"text"`
	}
	query := map[string]string{"test": fs.Arg(0)}
	if err := e.api.send(ctx, http.MethodPost, "/api/selftest", query, nil, &res); err != nil {
		return err
	}
	fmt.Fprintln(e.out, strings.TrimRight(res.Text, "\n"))
	if !res.Success {
		return fmt.Errorf("%d of %d test(s) failed", res.Report.Failed, res.Report.Runs)
	}
	return nil
}

func runManifest(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "manifest")
	module := fs.String("module", "", "Plugin module")
	variant := fs.String("variant", "", "Manifest variant (A or B)")
	diff := fs.Bool("diff", false, "Compare variant A against B (needs -module)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	if *diff {
		if *module == "" {
			return errUsage
		}
		return printDiff(ctx, e, *module)
	}

	var res struct {
		Manifests []struct {
			manifest.Manifest
			Valid    bool               `json:"valid"`
			Problems []manifest.Problem `json:"problems"`
		} `json:"manifests"`
		Valid     bool             `json:"valid"`
		Canonical manifest.Variant `json:"canonical"`
	}
	query := map[string]string{"module": *module, "variant": *variant}
	if err := e.api.get(ctx, "/api/manifest", query, &res); err != nil {
		return err
	}
	for _, m := range res.Manifests {
		status := "ok"
		if !m.Valid {
			status = "INVALID"
		}
		marker := ""
		if m.Variant == res.Canonical {
			marker = " (canonical)"
		}
		fmt.Fprintf(e.out, "%s variant %s%s: %s\n", m.Module, m.Variant, marker, status)
		fmt.Fprintf(e.out, "  public:  %s\n", strings.Join(m.Public, ", "))
		fmt.Fprintf(e.out, "  private: %s\n", strings.Join(m.Private, ", "))
		for _, p := range m.Problems {
			fmt.Fprintf(e.out, "  ! %s\n", p)
		}
	}
	if !res.Valid {
		return fmt.Errorf("manifest validation failed")
	}
	return nil
}

func printDiff(ctx context.Context, e *env, module string) error {
	var res struct {
		Diff manifest.Diff `json:"diff"`
		Same bool          `json:"same"`
	}
	if err := e.api.get(ctx, "/api/manifest/diff", map[string]string{"module": module}, &res); err != nil {
		return err
	}
	d := res.Diff
	fmt.Fprintf(e.out, "%s: variant %s -> %s\n", d.Module, d.From, d.To)
	if res.Same {
		fmt.Fprintln(e.out, "  no differences")
		return nil
	}
	for _, line := range []struct {
		sign  string
		scope string
		names []string
	}{
		{"+", "public", d.PublicAdded},
		{"-", "public", d.PublicRemoved},
		{"+", "private", d.PrivateAdded},
		{"-", "private", d.PrivateRemoved},
	} {
		for _, n := range line.names {
			fmt.Fprintf(e.out, "  %s %-8s %s\n", line.sign, line.scope, n)
		}
	}
	return nil
}

func runThrottle(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "throttle")
	enabled := fs.String("enabled", "", "on or off")
	interval := fs.Float64("interval", -1, "Minimum seconds between messages")
	if err := parse(fs, args, 1); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		var res struct {
			Settings []throttle.Setting `json:"settings"`
		}
		if err := e.api.get(ctx, "/api/throttle", nil, &res); err != nil {
			return err
		}
		tw := table(e.out)
		fmt.Fprintln(tw, "TYPE\tTHROTTLED\tINTERVAL")
		for _, s := range res.Settings {
			fmt.Fprintf(tw, "%s\t%s\t%.3fs\n", s.Type, onOff(s.Enabled), s.Interval)
		}
		return tw.Flush()
	}

	body := map[string]any{"type": fs.Arg(0)}
	if *enabled != "" {
		on, err := parseOnOff(*enabled)
		if err != nil {
			return err
		}
		body["enabled"] = on
	}
	if *interval >= 0 {
		body["interval"] = *interval
	}
	var res throttle.Setting
	if err := e.api.send(ctx, http.MethodPut, "/api/throttle", nil, body, &res); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s: throttling %s, interval %.3fs\n", res.Type, onOff(res.Enabled), res.Interval)
	return nil
}

func runWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "watch")
	interval := fs.Duration("interval", 2*time.Second, "Poll interval")
	count := fs.Int("count", 0, "Stop after N polls (0 = until interrupted)")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *interval <= 0 {
		return errUsage
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for n := 1; ; n++ {
		var res struct {
			Stats session.Stats `json:"stats"`
		}
		if err := e.api.get(ctx, "/api/stats", nil, &res); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s := res.Stats
		fmt.Fprintf(e.out, "%s users=%d locks=%d relayed=%d msg/s=%.1f latency=%.1fms errors=%d\n",
			time.Now().Format("15:04:05"), len(s.Users), s.ActiveLocks, s.Relayed,
			s.Performance.MessagesPerSecond, s.Performance.AverageLatencyMs, s.Performance.TotalErrors)

		if *count > 0 && n >= *count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
