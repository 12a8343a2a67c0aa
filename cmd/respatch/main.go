// Package main provides the ResPatch CLI tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZacharyZcR/ResPatch/internal/cli"
	"github.com/ZacharyZcR/ResPatch/internal/config"
	"github.com/ZacharyZcR/ResPatch/internal/iconimg"
	"github.com/ZacharyZcR/ResPatch/internal/pe"
	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (.toml/.yaml)")
	debug      = flag.Bool("debug", false, "输出调试日志")

	// Analysis flags.
	verbose     = flag.Bool("v", false, "详细模式：显示完整清单和所有图标")
	showTree    = flag.Bool("tree", false, "列出资源树中的所有数据项")
	jsonOutput  = flag.Bool("json", false, "以JSON格式输出分析结果")
	exportIcons = flag.String("export-icons", "", "将图标组导出为 .ico 文件到指定目录")

	// Patch flags.
	patchMode    = flag.Bool("patch", false, "修改模式：修改PE文件的资源")
	addIcon      = flag.String("add-icon", "", "添加图标 (.ico 或 .png 文件)")
	changeIcon   = flag.String("change-icon", "", "替换图标 (格式: ID=文件)")
	setManifest  = flag.String("set-manifest", "", "用XML文件替换清单")
	sectionName  = flag.String("section-name", "", "资源放不下时注入的新节区名称 (最大8字符)")
	defaultLang  = flag.String("lang", "", "新建资源使用的语言ID (例如: 0x0409)")
	updateCksum  = flag.Bool("update-checksum", true, "修改后更新校验和")
	createBackup = flag.Bool("backup", true, "修改前创建备份文件")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	path := flag.Arg(0)

	cfg, err := loadConfig()
	if err == nil {
		logger := newLogger(cfg)
		if *patchMode {
			err = patchPE(path, cfg, logger)
		} else {
			err = analyzePE(path, cfg, logger)
		}
	}

	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// given explicitly on the command line over it.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			cfg.Verbose = *verbose
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		case "section-name":
			cfg.SectionName = *sectionName
		case "lang":
			cfg.DefaultLang = *defaultLang
		case "update-checksum":
			cfg.UpdateChecksum = *updateCksum
		case "backup":
			cfg.Backup = *createBackup
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) log.Interface {
	return &log.Logger{
		Handler: clihandler.New(os.Stderr),
		Level:   cfg.Level(),
	}
}

func managerOptions(cfg *config.Config, logger log.Interface) ([]rsrc.ManagerOption, error) {
	lang, err := cfg.Lang()
	if err != nil {
		return nil, err
	}
	return []rsrc.ManagerOption{
		rsrc.WithLogger(logger),
		rsrc.WithDefaultLang(rsrc.LangID(lang)),
	}, nil
}

func analyzePE(path string, cfg *config.Config, logger log.Interface) error {
	reader, err := pe.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	analyzer := pe.NewAnalyzer(reader)
	analyzer.SetLogger(logger)
	info, err := analyzer.Analyze()
	if err != nil {
		return err
	}

	if *jsonOutput {
		if err := cli.WriteJSON(os.Stdout, info); err != nil {
			return err
		}
	} else {
		reporter := cli.NewReporter(info)
		reporter.SetVerbose(cfg.Verbose)
		reporter.SetShowTree(*showTree)
		reporter.Print()
	}

	if *exportIcons != "" {
		opts, err := managerOptions(cfg, logger)
		if err != nil {
			return err
		}
		m, err := pe.LoadResources(reader, opts...)
		if err != nil {
			return err
		}
		return exportIconGroups(m, *exportIcons)
	}
	return nil
}

// exportIconGroups writes every group icon as a standalone .ico file.
func exportIconGroups(m *rsrc.Manager, dir string) error {
	if !m.HasIcons() {
		_, _ = color.New(color.FgYellow).Println("未发现图标组，无需导出")
		return nil
	}
	groups, err := m.IconGroups()
	if err != nil {
		return fmt.Errorf("读取图标组失败: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}

	green := color.New(color.FgGreen)
	for _, g := range groups {
		dst := filepath.Join(dir, iconFileName(g))
		if err := writeICO(dst, g.Icons); err != nil {
			return err
		}
		_, _ = green.Printf("✓ 已导出图标组 %s (%d 个图像): %s\n", g.Selector, len(g.Icons), dst)
	}
	return nil
}

func iconFileName(g rsrc.IconGroup) string {
	if name, ok := g.Selector.Name(); ok {
		clean := strings.Map(func(r rune) rune {
			if strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20 {
				return '_'
			}
			return r
		}, name)
		return fmt.Sprintf("group_%s_%04x.ico", clean, uint16(g.Lang))
	}
	id, _ := g.Selector.ID()
	return fmt.Sprintf("group_%d_%04x.ico", id, uint16(g.Lang))
}

func writeICO(dst string, icons []rsrc.Icon) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("创建图标文件失败: %w", err)
	}
	if err := rsrc.SaveICO(f, icons); err != nil {
		_ = f.Close()
		return fmt.Errorf("写入图标文件失败: %w", err)
	}
	return f.Close()
}

func patchPE(path string, cfg *config.Config, logger log.Interface) error {
	if *addIcon == "" && *changeIcon == "" && *setManifest == "" {
		return fmt.Errorf("必须指定至少一个修改操作")
	}

	if err := createBackupIfNeeded(path, cfg); err != nil {
		return err
	}

	patcher, err := pe.NewPatcher(path)
	if err != nil {
		return err
	}
	defer func() { _ = patcher.Close() }()
	patcher.SetSectionName(cfg.SectionName)

	opts, err := managerOptions(cfg, logger)
	if err != nil {
		return err
	}
	m, err := patcher.Resources(opts...)
	if err != nil {
		return err
	}

	if err := applyPatches(m, cfg); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Println("正在写入资源目录...")
	result, err := patcher.ReplaceResources(m)
	if err != nil {
		return err
	}

	if cfg.UpdateChecksum {
		if err := updateChecksumWithMessage(patcher); err != nil {
			return err
		}
	}

	printPatchSuccess(result)
	return nil
}

func applyPatches(m *rsrc.Manager, cfg *config.Config) error {
	if *addIcon != "" {
		if err := addIconFile(m, *addIcon, cfg.IconSizes); err != nil {
			return err
		}
	}

	if *changeIcon != "" {
		id, file, err := parseChangeIcon(*changeIcon)
		if err != nil {
			return err
		}
		if err := changeIconFile(m, id, file, cfg.IconSizes); err != nil {
			return err
		}
	}

	if *setManifest != "" {
		if err := replaceManifest(m, *setManifest); err != nil {
			return err
		}
	}
	return nil
}

func loadIcons(path string, sizes []int) ([]rsrc.Icon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开图标文件失败: %w", err)
	}
	defer func() { _ = f.Close() }()

	icons, err := iconimg.Load(f, sizes)
	if err != nil {
		return nil, err
	}
	if len(icons) == 0 {
		return nil, fmt.Errorf("图标文件不含任何图像: %s", path)
	}
	return icons, nil
}

func addIconFile(m *rsrc.Manager, path string, sizes []int) error {
	icons, err := loadIcons(path, sizes)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Printf("正在添加图标 '%s'...\n", path)
	green := color.New(color.FgGreen)
	for _, icon := range icons {
		added, err := m.AddIcon(icon)
		if err != nil {
			return fmt.Errorf("添加图标失败: %w", err)
		}
		w, h := added.Size()
		_, _ = green.Printf("  ✓ 图标 ID %d (%dx%d, %d位)\n", added.ID, w, h, added.BitCount)
	}
	return nil
}

// changeIconFile replaces icon id with the first, largest image of path.
func changeIconFile(m *rsrc.Manager, id uint16, path string, sizes []int) error {
	icons, err := loadIcons(path, sizes)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Printf("正在替换图标 ID %d...\n", id)
	if err := m.ChangeIcon(rsrc.Icon{ID: id}, icons[0]); err != nil {
		return fmt.Errorf("替换图标失败: %w", err)
	}
	return nil
}

func replaceManifest(m *rsrc.Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取清单文件失败: %w", err)
	}

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Printf("正在替换清单 '%s'...\n", path)
	if err := m.SetManifest(string(data)); err != nil {
		return fmt.Errorf("替换清单失败: %w", err)
	}
	return nil
}

// parseChangeIcon splits an "ID=file" argument. The id may be decimal or
// hexadecimal with a 0x prefix.
func parseChangeIcon(arg string) (uint16, string, error) {
	idText, file, ok := strings.Cut(arg, "=")
	if !ok || file == "" {
		return 0, "", fmt.Errorf("无效的图标替换参数: %s (格式: ID=文件)", arg)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idText), 0, 16)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("无效的图标ID: %s", idText)
	}
	return uint16(id), file, nil
}

func updateChecksumWithMessage(patcher *pe.Patcher) error {
	cyan := color.New(color.FgCyan)
	_, _ = cyan.Println("正在更新PE校验和...")
	return patcher.UpdateChecksum()
}

func createBackupIfNeeded(path string, cfg *config.Config) error {
	if !cfg.Backup {
		return nil
	}

	backupPath := path + ".bak"
	if err := copyFile(path, backupPath); err != nil {
		return fmt.Errorf("创建备份失败: %w", err)
	}

	green := color.New(color.FgGreen)
	_, _ = green.Printf("✓ 已创建备份: %s\n", backupPath)
	return nil
}

func printPatchSuccess(result *pe.ReplaceResult) {
	green := color.New(color.FgGreen, color.Bold)
	_, _ = green.Println("\n✓ 资源修改成功!")

	if result.CertificateRemoved {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Println("  ⚠ 已移除数字签名，如需发布请重新签名")
	}

	switch {
	case result.InPlace:
		fmt.Printf("  资源目录已原位写入节区 %s (RVA 0x%08X, %d 字节)\n", result.Section, result.RVA, result.Size)
	case result.Injected:
		fmt.Printf("  资源目录已写入新节区 %s (RVA 0x%08X, %d 字节)\n", result.Section, result.RVA, result.Size)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0666)
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nResPatch - PE资源查看和修改工具")

	fmt.Println("\n分析模式用法:")
	fmt.Println("  respatch [选项] <PE文件路径>")
	fmt.Println("\n分析选项:")
	fmt.Println("  -v                    详细模式：显示完整清单和所有图标")
	fmt.Println("  -tree                 列出资源树中的所有数据项（路径、大小、熵、类型）")
	fmt.Println("  -json                 以JSON格式输出分析结果")
	fmt.Println("  -export-icons <目录>  将每个图标组导出为 .ico 文件")

	fmt.Println("\n修改模式用法:")
	fmt.Println("  respatch -patch [选项] <PE文件路径>")
	fmt.Println("\n修改选项:")
	fmt.Println("  -patch                启用修改模式")
	fmt.Println("  -add-icon <文件>      添加图标（.ico 直接使用，.png 按配置的尺寸生成）")
	fmt.Println("  -change-icon <ID=文件> 替换指定ID的图标，保留其在图标组中的位置")
	fmt.Println("  -set-manifest <文件>  用XML文件替换清单")
	fmt.Println("  -section-name <名称>  资源放不下原节区时注入的新节区名称（默认: .rsrc2）")
	fmt.Println("  -lang <ID>            新建资源使用的语言ID（默认: 0x0409）")
	fmt.Println("  -update-checksum      修改后更新校验和（默认: true）")
	fmt.Println("  -backup               修改前创建 .bak 备份（默认: true）")

	fmt.Println("\n通用选项:")
	fmt.Println("  -config <文件>        从 .toml 或 .yaml 文件读取默认设置")
	fmt.Println("  -debug                输出调试日志")

	fmt.Println("\n示例:")
	fmt.Println("  respatch -tree app.exe")
	fmt.Println("  respatch -json app.exe > report.json")
	fmt.Println("  respatch -export-icons icons app.exe")
	fmt.Println("  respatch -patch -add-icon logo.png app.exe")
	fmt.Println("  respatch -patch -change-icon 1=new.ico -backup=false app.exe")
	fmt.Println("  respatch -patch -set-manifest app.manifest app.exe")
	fmt.Println()
}
