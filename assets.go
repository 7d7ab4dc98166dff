package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/syahrul84/ElvisAPI/pkg/elvis"
)

const (
	defaultSearchNum    = 50
	defaultGetParallel  = 4
	maxGetParallel      = 32
	collectionExtension = ".collection"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search assets",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().Int("start", 0, "index of the first hit")
	cmd.Flags().Int("num", defaultSearchNum, "number of hits")

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <query> <local-dir>",
		Short: "Download every asset matching a query",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}

	cmd.Flags().Int("num", defaultSearchNum, "maximum number of assets")
	cmd.Flags().Int("parallel", defaultGetParallel, "concurrent downloads")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file> <asset-path>",
		Short: "Upload a file as a new asset",
		Args:  cobra.ExactArgs(2),
		RunE:  runPut,
	}

	cmd.Flags().StringArray("set", nil, "metadata field as key=value (repeatable)")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <asset-id>",
		Short: "Change metadata of an asset",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}

	cmd.Flags().StringArray("set", nil, "metadata field as key=value (repeatable)")

	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source-path> <target-path>",
		Short: "Move or rename an asset or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <asset-id>... | rm --folder <folder-path>",
		Short: "Delete assets, or a folder with everything in it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}

	cmd.Flags().Bool("folder", false, "treat the argument as a folder path and delete it recursively")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <folder-path>",
		Short: "Create a folder (recursive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection <asset-path>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollection,
	}

	cmd.Flags().StringArray("add", nil, "asset id to add to the new collection (repeatable)")

	return cmd
}

func newRelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relate <asset-id-1> <asset-id-2>",
		Short: "Create a relation between two assets",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelate,
	}

	cmd.Flags().String("type", elvis.RelationContains, "relation type")

	return cmd
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <asset-id>...",
		Short: "Create a share link for assets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runShare,
	}

	cmd.Flags().String("subject", "", "share link subject (required)")
	cmd.Flags().String("valid-until", "", "expiry date as YYYY-MM-DD")
	cmd.Flags().String("description", "", "share link description")
	cmd.Flags().Bool("request-upload", false, "allow recipients to upload")
	cmd.Flags().Bool("download-original", false, "allow downloading originals")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// errServiceFailure marks a request the service answered with an error
// object instead of a result.
var errServiceFailure = errors.New("service reported an error")

// checkResponse turns an in-band failure object into an error.
func checkResponse(resp elvis.Response) error {
	if !resp.Has("errorcode") {
		return nil
	}

	return fmt.Errorf("%w: %s (code %s)", errServiceFailure, resp.String("message"), resp.String("errorcode"))
}

// parseAssignments parses key=value pairs from repeated --set flags.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))

	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", p)
		}

		out[k] = v
	}

	return out, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start, _ := cmd.Flags().GetInt("start")
	num, _ := cmd.Flags().GetInt("num")

	s, err := loggedInClient(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := s.client.Search(ctx, args[0], start, num)
	if err != nil {
		return fmt.Errorf("searching %q: %w", args[0], err)
	}

	if err := checkResponse(resp); err != nil {
		return err
	}

	result, err := resp.SearchResult()
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}

	printHits(cmd.OutOrStdout(), result)
	statusf("%d of %d hits\n", len(result.Hits), result.TotalHits)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	query, dir := args[0], args[1]
	num, _ := cmd.Flags().GetInt("num")
	parallel, _ := cmd.Flags().GetInt("parallel")

	if parallel < 1 || parallel > maxGetParallel {
		return fmt.Errorf("--parallel must be between 1 and %d", maxGetParallel)
	}

	s, err := loggedInClient(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := interruptContext(cmd.Context(), s.logger)
	defer cancel()

	resp, err := s.client.Search(ctx, query, 0, num)
	if err != nil {
		return fmt.Errorf("searching %q: %w", query, err)
	}

	if err := checkResponse(resp); err != nil {
		return err
	}

	result, err := resp.SearchResult()
	if err != nil {
		return err
	}

	var (
		downloaded atomic.Int32
		skipped    atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	names := downloadNames(result.Hits)

	for i, hit := range result.Hits {
		if hit.OriginalURL == "" {
			s.logger.Warn("asset has no original URL, skipping", slog.String("id", hit.ID))
			skipped.Add(1)

			continue
		}

		dest := filepath.Join(dir, names[i])

		g.Go(func() error {
			if _, err := s.client.DownloadFile(gctx, hit.OriginalURL, dest); err != nil {
				return fmt.Errorf("downloading %s: %w", hit.ID, err)
			}

			downloaded.Add(1)
			statusf("Downloaded %s\n", dest)

			return nil
		})
	}

	err = g.Wait()

	statusf("%d downloaded, %d skipped\n", downloaded.Load(), skipped.Load())

	return err
}

// downloadNames returns the local file name for each hit. Server-provided
// names never escape the target directory, and names shared by several
// downloadable hits get the asset id appended so no download overwrites
// another.
func downloadNames(hits []elvis.Hit) []string {
	names := make([]string, len(hits))
	count := make(map[string]int, len(hits))

	for i, hit := range hits {
		names[i] = safeBase(hit.Filename())

		if hit.OriginalURL != "" {
			count[names[i]]++
		}
	}

	taken := make(map[string]bool, len(hits))
	for name, n := range count {
		if n == 1 {
			taken[name] = true
		}
	}

	for i, hit := range hits {
		if hit.OriginalURL == "" || count[names[i]] < 2 {
			continue
		}

		ext := filepath.Ext(names[i])
		stem := strings.TrimSuffix(names[i], ext) + "-" + safeBase(hit.ID)

		name := stem + ext
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}

		taken[name] = true
		names[i] = name
	}

	return names
}

// safeBase reduces name to a single path element.
func safeBase(name string) string {
	return filepath.Base(filepath.Clean("/" + name))
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	localPath, assetPath := args[0], args[1]

	sets, _ := cmd.Flags().GetStringArray("set")

	meta, err := parseAssignments(sets)
	if err != nil {
		return err
	}

	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	fields := elvis.Fields{"assetPath": assetPath}

	if len(meta) > 0 {
		encoded, err := elvis.EncodeMetadata(meta)
		if err != nil {
			return err
		}

		fields["metadata"] = encoded
	}

	s, err := loggedInClient(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := s.client.Upload(ctx, path.Base(assetPath), fields, localPath)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	if err := checkResponse(resp); err != nil {
		return err
	}

	return printResponse(cmd.OutOrStdout(), resp)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sets, _ := cmd.Flags().GetStringArray("set")

	if len(sets) == 0 {
		return errors.New("nothing to update, pass at least one --set key=value")
	}

	meta, err := parseAssignments(sets)
	if err != nil {
		return err
	}

	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		return c.UpdateMetadata(ctx, args[0], meta)
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		return c.Move(cmd.Context(), args[0], args[1])
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	folder, _ := cmd.Flags().GetBool("folder")

	if folder && len(args) != 1 {
		return errors.New("--folder takes exactly one folder path")
	}

	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		if folder {
			return c.RemoveByFolder(cmd.Context(), args[0])
		}

		return c.RemoveByID(cmd.Context(), args...)
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		return c.CreateFolder(cmd.Context(), args[0])
	})
}

func runCollection(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	members, _ := cmd.Flags().GetStringArray("add")

	assetPath := args[0]
	if !strings.HasSuffix(assetPath, collectionExtension) {
		assetPath += collectionExtension
	}

	name := strings.TrimSuffix(path.Base(assetPath), collectionExtension)

	s, err := loggedInClient(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := s.client.CreateCollection(ctx, assetPath, path.Dir(assetPath), "collection", name)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", assetPath, err)
	}

	if err := checkResponse(resp); err != nil {
		return err
	}

	collectionID := resp.String("id")

	for _, id := range members {
		rel, err := s.client.CollectionRelation(ctx, collectionID, id)
		if err != nil {
			return fmt.Errorf("adding %s to collection: %w", id, err)
		}

		if err := checkResponse(rel); err != nil {
			return fmt.Errorf("adding %s to collection: %w", id, err)
		}
	}

	return printResponse(cmd.OutOrStdout(), resp)
}

func runRelate(cmd *cobra.Command, args []string) error {
	relType, _ := cmd.Flags().GetString("type")

	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		return c.CreateRelation(cmd.Context(), relType, args[0], args[1])
	})
}

func runShare(cmd *cobra.Command, args []string) error {
	subject, _ := cmd.Flags().GetString("subject")
	validUntil, _ := cmd.Flags().GetString("valid-until")
	description, _ := cmd.Flags().GetString("description")
	requestUpload, _ := cmd.Flags().GetBool("request-upload")
	downloadOriginal, _ := cmd.Flags().GetBool("download-original")

	share := elvis.ShareLink{
		Subject:          subject,
		AssetIDs:         args,
		Description:      description,
		RequestUpload:    requestUpload,
		DownloadOriginal: downloadOriginal,
	}

	if validUntil != "" {
		t, err := time.Parse(time.DateOnly, validUntil)
		if err != nil {
			return fmt.Errorf("--valid-until: %w", err)
		}

		share.ValidUntil = t
	}

	return runSimple(cmd, func(c *elvis.Client) (elvis.Response, error) {
		return c.CreateAuthKey(cmd.Context(), share.Fields())
	})
}

// runSimple logs in, runs one operation, and prints its response.
func runSimple(cmd *cobra.Command, op func(c *elvis.Client) (elvis.Response, error)) error {
	s, err := loggedInClient(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	resp, err := op(s.client)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	if err := checkResponse(resp); err != nil {
		return err
	}

	return printResponse(cmd.OutOrStdout(), resp)
}
