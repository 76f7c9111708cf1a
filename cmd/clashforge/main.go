package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clashforge/internal/config"
	"clashforge/internal/groups"
	"clashforge/internal/node"
	"clashforge/internal/output"
	"clashforge/internal/proxy"
	"clashforge/internal/rules"
)

// Fields the node dedup hash must not see: the display name is cosmetic and
// skip-cert-verify toggles per export without changing the node.
var ignoredNodeFields = []string{"name", "skip-cert-verify"}

var (
	iniPath     string
	basePath    string
	proxiesPath string
	outputPath  string
	saveDir     string
	pageSize    int
	splitCount  int
	failFast    bool
	timeout     time.Duration
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clashforge",
		Short:         "重新构建 clash 订阅文件的代理组和规则，支持合并多个订阅文件",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVarP(&iniPath, "ini", "c", "config/ACL4SSR.ini", "ini 配置文件")
	cmd.Flags().StringVarP(&basePath, "base", "b", "mihomo/base.yaml", "clash 配置的头信息文件")
	cmd.Flags().StringVarP(&proxiesPath, "proxies", "f", "clash.yaml", "含有 proxies 节点的配置文件，多个用英文逗号隔开")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "output.yaml", "生成的 clash 文件输出路径")
	cmd.Flags().StringVarP(&saveDir, "save-dir", "s", "rules/download/", "网上下载的规则保存的文件夹路径")
	cmd.Flags().IntVarP(&pageSize, "page-size", "n", 50, "数据分页，每个配置最大节点数")
	cmd.Flags().IntVarP(&splitCount, "split", "k", 50, "同一 URL 分片下载的份数")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "任一规则下载失败时中止构建（默认降级为空）")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "整个构建过程的超时时间")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fs := afero.NewOsFs()
	start := time.Now()

	if err := output.CleanOutputs(fs, outputPath); err != nil {
		return err
	}

	baseRaw, err := afero.ReadFile(fs, basePath)
	if err != nil {
		return fmt.Errorf("读取 base 配置失败: %w", err)
	}
	baseText, err := output.FixIndent(string(baseRaw))
	if err != nil {
		return err
	}

	merged, err := proxy.Merge(fs, proxiesPath, "proxies")
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		logger.Warn("没有读到任何节点，跳过构建", zap.String("proxies", proxiesPath))
		return nil
	}

	pages := node.DedupAndPaginate(merged, pageSize, ignoredNodeFields,
		func(m map[string]any) (string, bool) {
			s, ok := m["name"].(string)
			return s, ok && s != ""
		},
		func(m *map[string]any, name string) {
			(*m)["name"] = name
		},
	)

	cfg, err := config.Load(fs, iniPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	res, err := rules.Aggregate(ctx, cfg.Sources, rules.Options{
		Threads:  splitCount,
		SaveDir:  saveDir,
		FailFast: failFast,
		Logger:   logger,
		Fs:       fs,
	})
	if err != nil {
		return err
	}
	rulesText, err := output.RenderRules(res.Lines)
	if err != nil {
		return err
	}

	for i, page := range pages {
		proxiesText, err := output.RenderProxies(page.Items)
		if err != nil {
			return err
		}
		groupsRaw, err := groups.Render(cfg.Groups, page.Names, cfg.RulesetNames)
		if err != nil {
			return err
		}
		groupsText, err := output.FixIndent(groupsRaw)
		if err != nil {
			return err
		}

		path := output.PageFileName(outputPath, i, len(pages), "snap", "")
		if err := output.WriteConfig(fs, path, baseText, proxiesText, groupsText, rulesText); err != nil {
			return err
		}
		logger.Info("已写入配置",
			zap.String("path", path),
			zap.Int("nodes", len(page.Items)))
	}

	logger.Info("构建完成",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("rules", res.Count),
		zap.Int("pages", len(pages)))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
