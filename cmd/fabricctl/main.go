// Command fabricctl drives an iterative datacenter cabling workflow through
// the bulk-job API: create the supporting records, load devices and
// interfaces, push the full cable design, and tear it down again for the
// next design round.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/turbobulk/turbobulk-go/internal/bulk"
	"github.com/turbobulk/turbobulk-go/internal/cachestore"
	"github.com/turbobulk/turbobulk-go/internal/datafile"
	"github.com/turbobulk/turbobulk-go/internal/metrics"
	"github.com/turbobulk/turbobulk-go/internal/topology"
	"github.com/turbobulk/turbobulk-go/internal/workdir"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

// loadConfig reads service configuration from environment variables and
// applies defaults. It returns an error when a required variable is absent.
func loadConfig() (baseURL, token, workRoot, cachePath string, err error) {
	baseURL = os.Getenv("NETBOX_URL")
	if baseURL == "" {
		err = fmt.Errorf("NETBOX_URL environment variable is required")
		return
	}
	token = os.Getenv("NETBOX_TOKEN")
	if token == "" {
		err = fmt.Errorf("NETBOX_TOKEN environment variable is required")
		return
	}
	workRoot = os.Getenv("TURBOBULK_WORKDIR")
	cachePath = os.Getenv("TURBOBULK_CACHE_DB")
	return
}

type app struct {
	client *bulk.Client
	cache  *cachestore.Store
	run    *workdir.Run
	spec   topology.Spec

	pollInterval time.Duration
	timeout      time.Duration
}

func main() {
	spec := topology.DefaultSpec()

	flag.StringVar(&spec.Prefix, "prefix", spec.Prefix, "naming prefix for all generated objects")
	flag.IntVar(&spec.Pods, "pods", spec.Pods, "number of pods")
	flag.IntVar(&spec.SpinesPerPod, "spines-per-pod", spec.SpinesPerPod, "spine switches per pod")
	flag.IntVar(&spec.LeavesPerPod, "leaves-per-pod", spec.LeavesPerPod, "leaf switches per pod")
	flag.IntVar(&spec.ServersPerLeaf, "servers-per-leaf", spec.ServersPerLeaf, "servers per leaf")
	flag.IntVar(&spec.NICsPerServer, "nics-per-server", spec.NICsPerServer, "fabric NICs per server")
	pollInterval := flag.Duration("poll-interval", time.Second, "delay between job status polls")
	timeout := flag.Duration("timeout", time.Hour, "wait budget per job")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	command := flag.Arg(0)
	if command == "" {
		log.Fatal("usage: fabricctl [flags] setup|devices|push|status|export|delete|teardown")
	}
	if err := spec.Validate(); err != nil {
		log.Fatalf("invalid topology: %v", err)
	}

	baseURL, token, workRoot, cachePath, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	client, err := bulk.NewClient(bulk.Config{BaseURL: baseURL, Token: token})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	mgr, err := workdir.NewManager(workRoot)
	if err != nil {
		log.Fatalf("failed to resolve workdir: %v", err)
	}
	run, err := mgr.NewRun()
	if err != nil {
		log.Fatalf("failed to create run dir: %v", err)
	}

	if cachePath == "" {
		cachePath = filepath.Join(mgr.Root(), "export_cache.db")
	}
	cache, err := cachestore.New(cachePath)
	if err != nil {
		log.Fatalf("failed to open cache store: %v", err)
	}
	defer cache.Close()
	if err := cache.Ping(); err != nil {
		log.Fatalf("cache store unreachable: %v", err)
	}

	if *metricsAddr != "" {
		metrics.Register(cache)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics listener error: %v", err)
			}
		}()
	}

	a := &app{
		client:       client,
		cache:        cache,
		run:          run,
		spec:         spec,
		pollInterval: *pollInterval,
		timeout:      *timeout,
	}

	slog.Info("fabricctl starting",
		"version", version, "commit", commit, "command", command,
		"prefix", spec.Prefix, "run", run.ID)

	ctx := context.Background()
	switch command {
	case "setup":
		err = a.cmdSetup(ctx)
	case "devices":
		err = a.cmdDevices(ctx)
	case "push":
		err = a.cmdPush(ctx)
	case "status":
		err = a.cmdStatus(ctx)
	case "export":
		err = a.cmdExport(ctx)
	case "delete":
		err = a.cmdDelete(ctx)
	case "teardown":
		err = a.cmdTeardown(ctx)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

type siteRow struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

type manufacturerRow struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// loadRows writes rows as gzipped JSONL into the run's payload dir and
// submits a load job for model, waiting for completion. Unique-constraint
// failures are tolerated when allowExisting is set, so setup can be re-run.
func loadRows[T any](ctx context.Context, a *app, model, name string, rows []T, allowExisting bool) error {
	path := a.run.PayloadPath(name + ".jsonl.gz")
	if err := datafile.WriteJSONL(path, rows); err != nil {
		return err
	}
	job, err := a.client.Load(ctx, model, path, bulk.LoadOptions{})
	if err != nil {
		return err
	}
	if job.ID != "" {
		_, err = a.client.AwaitJob(ctx, job.ID, a.pollInterval, a.timeout)
	}
	if err != nil {
		if jf, ok := err.(*bulk.JobFailedError); ok && allowExisting && strings.Contains(strings.ToLower(jf.Message), "unique") {
			slog.Info("records already exist, continuing", "model", model)
			return nil
		}
		return err
	}
	return nil
}

func (a *app) cmdSetup(ctx context.Context) error {
	s := a.spec
	siteName := s.Prefix + "-datacenter"

	if err := loadRows(ctx, a, "dcim.site", "site", []siteRow{{
		Name:        siteName,
		Slug:        siteName,
		Status:      "active",
		Description: "Spine/leaf fabric managed by fabricctl",
	}}, true); err != nil {
		return err
	}

	if err := loadRows(ctx, a, "dcim.manufacturer", "manufacturer", []manufacturerRow{{
		Name: s.Prefix,
		Slug: s.Prefix,
	}}, true); err != nil {
		return err
	}

	mfgID, err := a.lookupID(ctx, "/api/dcim/manufacturers/", "slug", s.Prefix)
	if err != nil {
		return fmt.Errorf("manufacturer not found, run setup again: %w", err)
	}

	if err := loadRows(ctx, a, "dcim.devicetype", "device_types", s.DeviceTypes(mfgID), true); err != nil {
		return err
	}
	if err := loadRows(ctx, a, "dcim.devicerole", "device_roles", s.DeviceRoles(), true); err != nil {
		return err
	}

	slog.Info("setup complete", "site", siteName)
	return nil
}

func (a *app) cmdDevices(ctx context.Context) error {
	s := a.spec

	siteID, err := a.lookupID(ctx, "/api/dcim/sites/", "slug", s.Prefix+"-datacenter")
	if err != nil {
		return fmt.Errorf("site not found, run setup first: %w", err)
	}
	typeIDs, err := a.slugIDMap(ctx, "/api/dcim/device-types/", "slug__startswith", s.Prefix)
	if err != nil {
		return err
	}
	roleIDs, err := a.slugIDMap(ctx, "/api/dcim/device-roles/", "slug__startswith", s.Prefix)
	if err != nil {
		return err
	}

	devices := s.Devices(siteID, typeIDs, roleIDs)
	slog.Info("loading devices", "count", len(devices))
	devicePath := a.run.PayloadPath("devices.parquet")
	if err := datafile.WriteParquet(devicePath, devices); err != nil {
		return err
	}
	if err := a.loadAndWait(ctx, "dcim.device", devicePath); err != nil {
		return err
	}

	deviceIDs, err := a.nameIDMap(ctx, "/api/dcim/devices/", "name__startswith", s.Prefix)
	if err != nil {
		return err
	}

	interfaces := s.Interfaces(deviceIDs)
	slog.Info("loading interfaces", "count", len(interfaces))
	ifacePath := a.run.PayloadPath("interfaces.parquet")
	if err := datafile.WriteParquet(ifacePath, interfaces); err != nil {
		return err
	}
	return a.loadAndWait(ctx, "dcim.interface", ifacePath)
}

type cableExportRow struct {
	ID    int64  `parquet:"id" json:"id"`
	Label string `parquet:"label" json:"label"`
}

func (a *app) cmdPush(ctx context.Context) error {
	s := a.spec

	interfaceIDs, err := a.interfaceIDMap(ctx, s.Prefix)
	if err != nil {
		return err
	}
	if len(interfaceIDs) == 0 {
		return fmt.Errorf("no interfaces found for prefix %q, run devices first", s.Prefix)
	}
	ifaceTypeID, err := a.client.ObjectTypeID(ctx, "dcim", "interface")
	if err != nil {
		return err
	}

	cables, staged := s.Cables(interfaceIDs, ifaceTypeID)
	slog.Info("generated cable design",
		"cables", len(cables), "staged_terminations", len(staged), "estimated", s.EstimatedCables())

	cablesPath := a.run.PayloadPath("cables.parquet")
	if err := datafile.WriteParquet(cablesPath, cables); err != nil {
		return err
	}
	if err := a.loadAndWait(ctx, "dcim.cable", cablesPath); err != nil {
		return err
	}

	// One export, filtered by label prefix, recovers every server-assigned
	// cable ID in a single pass. ForceRefresh: the cables just changed.
	result, err := a.client.Export(ctx, "dcim.cable", bulk.ExportOptions{
		Filters:      map[string]any{"label__startswith": s.Prefix},
		Fields:       []string{"id", "label"},
		Format:       bulk.FormatParquet,
		ForceRefresh: true,
		OutputPath:   a.run.ExportPath("cables.parquet"),
		PollInterval: a.pollInterval,
		Timeout:      a.timeout,
	})
	if err != nil {
		return err
	}
	exported, err := datafile.ReadParquet[cableExportRow](result.Path)
	if err != nil {
		return err
	}
	labelToID := make(map[string]int64, len(exported))
	for _, row := range exported {
		labelToID[row.Label] = row.ID
	}

	binder := topology.Binder{Policy: topology.UnmatchedWarn}
	bound, err := binder.Bind(staged, labelToID)
	if err != nil {
		return err
	}
	slog.Info("bound terminations",
		"terminations", len(bound.Terminations), "unmatched_labels", len(bound.Unmatched))

	termsPath := a.run.PayloadPath("terminations.parquet")
	if err := datafile.WriteParquet(termsPath, bound.Terminations); err != nil {
		return err
	}
	return a.loadAndWait(ctx, "dcim.cabletermination", termsPath)
}

func (a *app) cmdStatus(ctx context.Context) error {
	params := url.Values{}
	params.Set("label__startswith", a.spec.Prefix)
	params.Set("limit", "1")
	page, err := a.client.RestGet(ctx, "/api/dcim/cables/", params)
	if err != nil {
		return err
	}
	slog.Info("cable design status",
		"prefix", a.spec.Prefix, "current", page.Count, "target", a.spec.EstimatedCables())
	return nil
}

// cmdExport demonstrates the conditional export: the local cache store
// remembers the last cache key per query shape, so unchanged data comes back
// as a 304 with no download.
func (a *app) cmdExport(ctx context.Context) error {
	model := "dcim.device"
	filters := map[string]any{"name__startswith": a.spec.Prefix}
	fields := []string(nil)
	fp := cachestore.Fingerprint(filters, fields, string(bulk.FormatJSONL))

	var clientKey string
	if entry, err := a.cache.Get(model, fp); err == nil {
		clientKey = entry.CacheKey
	}

	result, err := a.client.Export(ctx, model, bulk.ExportOptions{
		Filters:        filters,
		Fields:         fields,
		ClientCacheKey: clientKey,
		OutputPath:     a.run.ExportPath("devices.jsonl.gz"),
		PollInterval:   a.pollInterval,
		Timeout:        a.timeout,
	})
	if err != nil {
		return err
	}

	slog.Info("export finished",
		"outcome", result.Outcome, "rows", result.RowCount, "path", result.Path)

	if result.Outcome != bulk.OutcomeNotModified && result.CacheKey != "" {
		return a.cache.Put(&cachestore.Entry{
			Model:       model,
			Fingerprint: fp,
			CacheKey:    result.CacheKey,
			RowCount:    result.RowCount,
			FilePath:    result.Path,
			UpdatedAt:   time.Now().UTC(),
		})
	}
	return nil
}

func (a *app) cmdDelete(ctx context.Context) error {
	s := a.spec

	cableIDs, err := a.exportIDs(ctx, "dcim.cable",
		map[string]any{"label__startswith": s.Prefix}, "delete_cables")
	if err != nil {
		return err
	}
	if len(cableIDs) == 0 {
		slog.Info("no cables to delete", "prefix", s.Prefix)
		return nil
	}

	// Terminations reference cables by FK, so they go first.
	termIDs, err := a.exportIDs(ctx, "dcim.cabletermination",
		map[string]any{"cable_id__in": cableIDs}, "delete_terminations")
	if err != nil {
		return err
	}
	if len(termIDs) > 0 {
		if err := a.deleteByID(ctx, "dcim.cabletermination", "term_ids", termIDs); err != nil {
			return err
		}
	}

	return a.deleteByID(ctx, "dcim.cable", "cable_ids", cableIDs)
}

func (a *app) cmdTeardown(ctx context.Context) error {
	s := a.spec

	if err := a.cmdDelete(ctx); err != nil {
		return fmt.Errorf("delete cables: %w", err)
	}

	ifaceIDs, err := a.exportIDs(ctx, "dcim.interface",
		map[string]any{"device__name__startswith": s.Prefix}, "delete_interfaces")
	if err != nil {
		return err
	}
	if len(ifaceIDs) > 0 {
		if err := a.deleteByID(ctx, "dcim.interface", "iface_ids", ifaceIDs); err != nil {
			return err
		}
	}

	deviceIDs, err := a.exportIDs(ctx, "dcim.device",
		map[string]any{"name__startswith": s.Prefix}, "delete_devices")
	if err != nil {
		return err
	}
	if len(deviceIDs) > 0 {
		if err := a.deleteByID(ctx, "dcim.device", "device_ids", deviceIDs); err != nil {
			return err
		}
	}

	// Site, manufacturer, device types, and roles stay for the next design.
	slog.Info("teardown complete", "prefix", s.Prefix)
	return nil
}

func (a *app) loadAndWait(ctx context.Context, model, path string) error {
	job, err := a.client.Load(ctx, model, path, bulk.LoadOptions{})
	if err != nil {
		return err
	}
	if job.ID == "" {
		return nil
	}
	done, err := a.client.AwaitJob(ctx, job.ID, a.pollInterval, a.timeout)
	if err != nil {
		return err
	}
	slog.Info("load complete", "model", model, "rows", done.RowsAffected(), "duration_s", done.DurationSeconds)
	return nil
}

// exportIDs exports just the id column for model under filters and returns
// the IDs. Always a fresh export: these feed deletes, and a stale ID set
// would delete the wrong rows.
func (a *app) exportIDs(ctx context.Context, model string, filters map[string]any, name string) ([]int64, error) {
	result, err := a.client.Export(ctx, model, bulk.ExportOptions{
		Filters:      filters,
		Fields:       []string{"id"},
		Format:       bulk.FormatParquet,
		ForceRefresh: true,
		OutputPath:   a.run.ExportPath(name + ".parquet"),
		PollInterval: a.pollInterval,
		Timeout:      a.timeout,
	})
	if err != nil {
		return nil, err
	}
	rows, err := datafile.ReadParquet[datafile.PKRow](result.Path)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (a *app) deleteByID(ctx context.Context, model, name string, ids []int64) error {
	path := a.run.PayloadPath(name + ".parquet")
	if err := datafile.WritePKFile(path, ids); err != nil {
		return err
	}
	job, err := a.client.Delete(ctx, model, path, bulk.DeleteOptions{})
	if err != nil {
		return err
	}
	if job.ID == "" {
		return nil
	}
	done, err := a.client.AwaitJob(ctx, job.ID, a.pollInterval, a.timeout)
	if err != nil {
		return err
	}
	slog.Info("delete complete", "model", model, "rows", done.RowsAffected())
	return nil
}

// lookupID returns the id of the single record matching key=value.
func (a *app) lookupID(ctx context.Context, endpoint, key, value string) (int64, error) {
	params := url.Values{}
	params.Set(key, value)
	page, err := a.client.RestGet(ctx, endpoint, params)
	if err != nil {
		return 0, err
	}
	if len(page.Results) == 0 {
		return 0, fmt.Errorf("no record at %s with %s=%s", endpoint, key, value)
	}
	return restInt(page.Results[0], "id"), nil
}

// slugIDMap returns slug -> id for every record matching the filter.
func (a *app) slugIDMap(ctx context.Context, endpoint, key, value string) (map[string]int64, error) {
	return a.fieldIDMap(ctx, endpoint, key, value, "slug")
}

// nameIDMap returns name -> id for every record matching the filter.
func (a *app) nameIDMap(ctx context.Context, endpoint, key, value string) (map[string]int64, error) {
	return a.fieldIDMap(ctx, endpoint, key, value, "name")
}

func (a *app) fieldIDMap(ctx context.Context, endpoint, key, value, field string) (map[string]int64, error) {
	params := url.Values{}
	params.Set(key, value)
	results, err := a.client.RestGetAll(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(results))
	for _, row := range results {
		name, _ := row[field].(string)
		if name == "" {
			continue
		}
		out[name] = restInt(row, "id")
	}
	return out, nil
}

// interfaceIDMap returns "device:ethN" -> interface id for every interface
// on devices with the given name prefix.
func (a *app) interfaceIDMap(ctx context.Context, prefix string) (map[string]int64, error) {
	params := url.Values{}
	params.Set("device__name__startswith", prefix)
	results, err := a.client.RestGetAll(ctx, "/api/dcim/interfaces/", params)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(results))
	for _, row := range results {
		name, _ := row["name"].(string)
		device, _ := row["device"].(map[string]any)
		deviceName, _ := device["name"].(string)
		if name == "" || deviceName == "" {
			continue
		}
		out[deviceName+":"+name] = restInt(row, "id")
	}
	return out, nil
}

func restInt(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
