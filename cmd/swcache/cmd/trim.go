package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unkn0wn-root/swcache"
)

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Run one size governor cycle",
	Long: "Post CACHE_CLEANUP to a running proxy (--remote), or trim shared storage directly.\n" +
		"Direct trimming is only meaningful with the redis index, where the key manifests outlive the process.",
	Args: cobra.NoArgs,
	RunE: runTrim,
}

func init() {
	trimCmd.Flags().String("remote", "", "base URL of a running proxy, e.g. http://localhost:8080")
	rootCmd.AddCommand(trimCmd)
}

func runTrim(cmd *cobra.Command, _ []string) (err error) {
	if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
		control := viper.GetString("control_path")
		return postCleanup(cmd.Context(), strings.TrimSuffix(remote, "/")+control+"/message")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := a.worker.PostMessage(cmd.Context(), swcache.Message{Type: swcache.MessageCacheCleanup}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "trim complete")
	return nil
}

func postCleanup(ctx context.Context, endpoint string) error {
	body, _ := json.Marshal(swcache.Message{Type: swcache.MessageCacheCleanup})
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post cleanup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("post cleanup: %s", resp.Status)
	}
	return nil
}
