// Package cli provides command-line interface utilities.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ZacharyZcR/ResPatch/internal/pe"
	"github.com/fatih/color"
)

// Reporter formats and prints resource analysis results.
type Reporter struct {
	info     *pe.Info
	out      io.Writer
	verbose  bool
	showTree bool
}

// NewReporter creates a new reporter for the given PE info.
func NewReporter(info *pe.Info) *Reporter {
	return &Reporter{info: info, out: color.Output}
}

// SetOutput redirects the report.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// SetVerbose enables verbose mode (full manifest and every icon).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetShowTree enables the per-leaf listing of the resource tree.
func (r *Reporter) SetShowTree(show bool) {
	r.showTree = show
}

// Print outputs the complete analysis report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printSections()

	res := r.info.Resources
	if res == nil {
		r.title("\n【资源】")
		fmt.Fprintln(r.out, "  未发现资源节")
		return
	}
	r.printResourceSummary()
	r.printVersion()
	r.printIcons()
	r.printDialogs()
	r.printManifest()
	if r.showTree {
		r.printLeaves()
	}
	r.printWarnings()
	fmt.Fprintln(r.out)
}

// WriteJSON writes the analysis as indented JSON.
func WriteJSON(w io.Writer, info *pe.Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("输出JSON失败: %w", err)
	}
	return nil
}

func (r *Reporter) title(format string, args ...any) {
	yellow := color.New(color.FgYellow, color.Bold)
	_, _ = yellow.Fprintf(r.out, format+"\n", args...)
}

func (r *Reporter) field(name, format string, args ...any) {
	fmt.Fprintf(r.out, "  %-16s: %s\n", name, fmt.Sprintf(format, args...))
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintln(r.out, "\n╔════════════════════════════════════════╗")
	_, _ = cyan.Fprintln(r.out, "║          ResPatch 资源报告             ║")
	_, _ = cyan.Fprintln(r.out, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	r.title("\n【基本信息】")

	r.field("文件路径", "%s", r.info.FilePath)
	r.field("文件大小", "%s", formatSize(r.info.FileSize))
	r.field("架构", "%s", r.info.Architecture)
	r.field("子系统", "%s", r.info.Subsystem)
	if r.info.Signed {
		fmt.Fprintf(r.out, "  %-16s: ", "数字签名")
		_, _ = color.New(color.FgYellow).Fprintln(r.out, "已签名 (修改资源将移除签名)")
	}

	cs := r.info.Checksum
	if cs == nil {
		return
	}
	fmt.Fprintf(r.out, "  %-16s: ", "校验和")
	switch {
	case cs.Stored == 0:
		_, _ = color.New(color.FgHiBlack).Fprint(r.out, "未设置")
	case cs.Valid:
		_, _ = color.New(color.FgGreen).Fprintf(r.out, "✓ 有效 (0x%08X)", cs.Stored)
	default:
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(r.out, "✗ 无效 (存储: 0x%08X, 计算: 0x%08X)", cs.Stored, cs.Computed)
	}
	fmt.Fprintln(r.out)
}

func (r *Reporter) printSections() {
	r.title("\n【节区信息】(共 %d 个)", len(r.info.Sections))
	if len(r.info.Sections) == 0 {
		fmt.Fprintln(r.out, "  未发现节区")
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 72))
	fmt.Fprintf(r.out, "  %-10s %-12s %-12s %-12s %-6s\n", "名称", "虚拟地址", "虚拟大小", "原始大小", "权限")
	fmt.Fprintln(r.out, strings.Repeat("-", 72))

	var rsrcSection string
	if r.info.Resources != nil {
		rsrcSection = r.info.Resources.Section
	}
	for _, s := range r.info.Sections {
		line := fmt.Sprintf("  %-10s 0x%08X   %-12s %-12s %-6s",
			s.Name, s.VirtualAddress, formatSize(int64(s.VirtualSize)), formatSize(int64(s.Size)), s.Permissions)
		if s.Name == rsrcSection {
			_, _ = color.New(color.FgGreen).Fprintln(r.out, line+"  ← 资源")
		} else {
			fmt.Fprintln(r.out, line)
		}
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 72))
}

func (r *Reporter) printResourceSummary() {
	res := r.info.Resources
	r.title("\n【资源概览】")
	r.field("所在节区", "%s", res.Section)
	r.field("RVA", "0x%08X", res.RVA)
	r.field("大小", "%s", formatSize(int64(res.Size)))
	r.field("资源类型", "%s", joinOrNone(res.Types))
	r.field("语言", "%s", joinOrNone(res.Languages))
	r.field("字符串", "%d 条", res.Strings)
}

func (r *Reporter) printVersion() {
	v := r.info.Resources.Version
	if v == nil {
		return
	}
	r.title("\n【版本信息】")
	r.field("语言", "%s", v.Lang)
	if v.FileVersion != "" {
		r.field("文件版本", "%s", v.FileVersion)
		r.field("产品版本", "%s", v.ProductVersion)
	}
	for _, k := range v.Strings.Keys() {
		s, _ := v.Strings.GetString(k)
		r.field(k, "%s", s)
	}
}

func (r *Reporter) printIcons() {
	icons := r.info.Resources.Icons
	if len(icons) == 0 {
		return
	}
	r.title("\n【图标】(共 %d 个)", len(icons))

	maxDisplay := 10
	if r.verbose {
		maxDisplay = len(icons)
	}
	green := color.New(color.FgGreen)
	for i, icon := range icons {
		if i == maxDisplay {
			_, _ = color.New(color.FgHiBlack).Fprintf(r.out, "  ... (还有 %d 个图标)\n", len(icons)-maxDisplay)
			break
		}
		_, _ = green.Fprintf(r.out, "  %3d. 组 %-10s ID %-5d %3dx%-3d %2d位  %-10s %s\n",
			i+1, icon.Group, icon.ID, icon.Width, icon.Height, icon.BitCount, formatSize(int64(icon.Bytes)), icon.MIME)
	}
}

func (r *Reporter) printDialogs() {
	dialogs := r.info.Resources.Dialogs
	if len(dialogs) == 0 {
		return
	}
	r.title("\n【对话框】(共 %d 个)", len(dialogs))
	for i, d := range dialogs {
		fmt.Fprintf(r.out, "  %3d. %s\n", i+1, d)
	}
}

func (r *Reporter) printManifest() {
	m := r.info.Resources.Manifest
	if m == "" {
		return
	}
	r.title("\n【清单】")

	lines := strings.Split(strings.TrimSpace(m), "\n")
	maxDisplay := 15
	if r.verbose {
		maxDisplay = len(lines)
	}
	for i, line := range lines {
		if i == maxDisplay {
			_, _ = color.New(color.FgHiBlack).Fprintf(r.out, "  ... (还有 %d 行)\n", len(lines)-maxDisplay)
			break
		}
		fmt.Fprintf(r.out, "  %s\n", strings.TrimRight(line, "\r"))
	}
}

func (r *Reporter) printLeaves() {
	leaves := r.info.Resources.Leaves
	r.title("\n【资源树】(共 %d 个数据项)", len(leaves))

	fmt.Fprintln(r.out, strings.Repeat("-", 80))
	fmt.Fprintf(r.out, "  %-32s %-10s %-8s %-6s %s\n", "路径", "大小", "代码页", "熵", "类型")
	fmt.Fprintln(r.out, strings.Repeat("-", 80))
	for _, l := range leaves {
		entropyColor := color.New(color.FgWhite)
		if l.Entropy > 7.0 {
			entropyColor = color.New(color.FgYellow)
		}
		fmt.Fprintf(r.out, "  %-32s %-10s %-8d ", l.Path, formatSize(int64(l.Size)), l.CodePage)
		_, _ = entropyColor.Fprintf(r.out, "%-6.2f", l.Entropy)
		fmt.Fprintf(r.out, " %s\n", l.MIME)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 80))
}

func (r *Reporter) printWarnings() {
	red := color.New(color.FgRed)
	for _, w := range r.info.Resources.Warnings {
		_, _ = red.Fprintf(r.out, "  ⚠ %s\n", w)
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "无"
	}
	return strings.Join(items, ", ")
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
