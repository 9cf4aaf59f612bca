package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-nodehost"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// runFlags run 命令参数
//
// 命令行参数覆盖配置文件中的同名设置，只在显式指定时生效。
type runFlags struct {
	configFile  string
	keyFile     string
	listen      []string
	bootstrap   []string
	minPeers    int
	maxPeers    int
	mdns        bool
	diagnostics string
	peerstore   string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动节点并运行到收到退出信号",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := buildOptions(f, cmd.Flags().Changed)
			if err != nil {
				return fmt.Errorf("配置错误: %w", err)
			}
			return runNode(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "配置文件路径（.json 或 .toml）")
	flags.StringVar(&f.keyFile, "key", "", "身份密钥文件路径")
	flags.StringSliceVar(&f.listen, "listen", nil, "监听地址（multiaddr，可重复）")
	flags.StringSliceVar(&f.bootstrap, "bootstrap", nil, "引导节点地址（可重复）")
	flags.IntVar(&f.minPeers, "min-peers", 0, "最少会话数")
	flags.IntVar(&f.maxPeers, "max-peers", 0, "最多会话数")
	flags.BoolVar(&f.mdns, "mdns", true, "启用局域网发现")
	flags.StringVar(&f.diagnostics, "diagnostics", "", "诊断 HTTP 服务地址，如 127.0.0.1:9180")
	flags.StringVar(&f.peerstore, "peerstore", "", "地址簿数据目录")
	return cmd
}

// buildOptions 构建选项
//
// 优先级（从高到低）：命令行参数、配置文件、默认值。
func buildOptions(f runFlags, changed func(string) bool) ([]nodehost.Option, error) {
	var opts []nodehost.Option
	if f.configFile != "" {
		opts = append(opts, nodehost.WithConfigFile(f.configFile))
	}
	if changed("key") {
		opts = append(opts, nodehost.WithKeyFile(f.keyFile))
	}
	if changed("listen") {
		opts = append(opts, nodehost.WithListenAddrs(f.listen...))
	}
	if changed("bootstrap") {
		opts = append(opts, nodehost.WithBootstrapPeers(f.bootstrap...))
	}
	if changed("min-peers") || changed("max-peers") {
		if !changed("min-peers") || !changed("max-peers") {
			return nil, fmt.Errorf("--min-peers and --max-peers must be set together")
		}
		opts = append(opts, nodehost.WithPeerBounds(f.minPeers, f.maxPeers))
	}
	if changed("mdns") {
		opts = append(opts, nodehost.WithMDNS(f.mdns))
	}
	if changed("diagnostics") && f.diagnostics != "" {
		opts = append(opts, nodehost.WithDiagnostics(f.diagnostics))
	}
	if changed("peerstore") {
		opts = append(opts, nodehost.WithPeerstorePath(f.peerstore))
	}
	return opts, nil
}

func runNode(ctx context.Context, out io.Writer, opts []nodehost.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("启动节点", "version", nodehost.Version, "commit", nodehost.GitCommit)
	node, err := nodehost.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	printNodeInfo(out, node)

	sub, err := node.Subscribe(new(types.EvtPeerDisconnected), pkgif.BufSize(64))
	if err != nil {
		return err
	}
	defer sub.Close()

	fmt.Fprintln(out, "节点已启动，按 Ctrl+C 退出")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "正在关闭节点...")
			return nil
		case evt, ok := <-sub.Out():
			if !ok {
				return nil
			}
			e := evt.(types.EvtPeerDisconnected)
			log.Info("节点已断开", "peer", e.Peer.ShortString(), "reason", e.Reason)
		}
	}
}

func printNodeInfo(out io.Writer, node *nodehost.Node) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "nodehost %s\n", nodehost.Version)
	fmt.Fprintf(out, "  Node ID: %s\n", node.ID())
	fmt.Fprintln(out, "  Addresses:")

	p2p, err := node.Info().P2PAddrs()
	if err == nil {
		for _, a := range p2p {
			fmt.Fprintf(out, "    %s\n", a)
		}
	}
	if addr := node.DiagnosticsAddr(); addr != "" {
		fmt.Fprintf(out, "  Diagnostics: http://%s/debug/node\n", addr)
	}
	fmt.Fprintln(out)
}
