// Package main provides the ResPatch GUI application.
package main

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/fatih/color"

	"github.com/ZacharyZcR/ResPatch/internal/cli"
	"github.com/ZacharyZcR/ResPatch/internal/config"
	"github.com/ZacharyZcR/ResPatch/internal/iconimg"
	"github.com/ZacharyZcR/ResPatch/internal/pe"
	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
)

const thumbnailSize = 48

// iconPreview is one decoded icon shown in the gallery.
type iconPreview struct {
	Label string
	Image image.Image
}

// loadConfig reads the optional config path in args[0]. On failure it
// returns the defaults together with the error so the caller can report it.
func loadConfig(args []string) (*config.Config, error) {
	if len(args) == 0 {
		return config.Default(), nil
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return config.Default(), err
	}
	return cfg, nil
}

func main() {
	cfg, cfgErr := loadConfig(os.Args[1:])
	logger := &log.Logger{Handler: discard.New(), Level: cfg.Level()}

	myApp := app.New()
	myWindow := myApp.NewWindow("ResPatch - PE资源查看与修改工具")
	myWindow.Resize(fyne.NewSize(900, 700))

	// File path
	filePathEntry := widget.NewEntry()
	filePathEntry.SetPlaceHolder("选择PE文件...")

	// Analysis output
	analysisOutput := widget.NewMultiLineEntry()
	analysisOutput.SetPlaceHolder("资源报告将显示在这里...")
	analysisOutput.Disable()

	iconGallery := container.NewGridWrap(fyne.NewSize(thumbnailSize+32, thumbnailSize+40))

	// Status label
	statusLabel := widget.NewLabel("就绪")

	setStatus := func(s string) {
		fyne.Do(func() { statusLabel.SetText(s) })
	}
	showError := func(err error, status string) {
		fyne.Do(func() {
			dialog.ShowError(err, myWindow)
			statusLabel.SetText(status)
		})
	}
	requireFile := func() bool {
		if filePathEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("请先选择PE文件"), myWindow)
			return false
		}
		return true
	}

	refresh := func() {
		setStatus("正在分析...")
		go func() {
			report, previews, err := analyzeFile(filePathEntry.Text, cfg, logger)
			if err != nil {
				showError(err, "分析失败")
				return
			}
			fyne.Do(func() {
				analysisOutput.SetText(report)
				iconGallery.RemoveAll()
				for _, p := range previews {
					img := canvas.NewImageFromImage(p.Image)
					img.FillMode = canvas.ImageFillContain
					img.SetMinSize(fyne.NewSize(thumbnailSize, thumbnailSize))
					iconGallery.Add(container.NewVBox(img, widget.NewLabel(p.Label)))
				}
				statusLabel.SetText("分析完成")
			})
		}()
	}

	// File picker button
	fileButton := widget.NewButton("选择文件", func() {
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			defer func() { _ = file.Close() }()
			filePathEntry.SetText(file.URI().Path())
		}, myWindow)
	})

	analyzeButton := widget.NewButton("分析", func() {
		if requireFile() {
			refresh()
		}
	})

	// Icon patch
	iconIDEntry := widget.NewEntry()
	iconIDEntry.SetPlaceHolder("留空为添加，填ID为替换")

	iconButton := widget.NewButton("选择图标并写入", func() {
		if !requireFile() {
			return
		}
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			iconPath := file.URI().Path()
			_ = file.Close()
			idText := strings.TrimSpace(iconIDEntry.Text)

			setStatus("正在写入图标...")
			go func() {
				msg, err := patchIcon(filePathEntry.Text, iconPath, idText, cfg, logger)
				if err != nil {
					showError(err, "修改失败")
					return
				}
				fyne.Do(func() { dialog.ShowInformation("成功", msg, myWindow) })
				refresh()
			}()
		}, myWindow)
	})

	// Manifest patch
	manifestButton := widget.NewButton("选择清单并替换", func() {
		if !requireFile() {
			return
		}
		dialog.ShowFileOpen(func(file fyne.URIReadCloser, err error) {
			if err != nil || file == nil {
				return
			}
			manifestPath := file.URI().Path()
			_ = file.Close()

			setStatus("正在替换清单...")
			go func() {
				if err := patchManifest(filePathEntry.Text, manifestPath, cfg, logger); err != nil {
					showError(err, "修改失败")
					return
				}
				fyne.Do(func() { dialog.ShowInformation("成功", "清单已替换", myWindow) })
				refresh()
			}()
		}, myWindow)
	})

	// Layout
	fileBox := container.NewBorder(nil, nil, nil, fileButton, filePathEntry)

	analysisBox := container.NewVSplit(
		container.NewVScroll(analysisOutput),
		container.NewVScroll(iconGallery),
	)
	analysisBox.SetOffset(0.7)

	patchBox := container.NewVBox(
		widget.NewLabel("图标修改:"),
		container.NewGridWithColumns(2,
			iconIDEntry,
			iconButton,
		),
		widget.NewSeparator(),
		widget.NewLabel("清单修改:"),
		manifestButton,
	)

	mainContent := container.NewBorder(
		container.NewVBox(
			widget.NewLabel("PE文件路径:"),
			fileBox,
			widget.NewSeparator(),
			analyzeButton,
		),
		container.NewVBox(
			widget.NewSeparator(),
			statusLabel,
		),
		nil,
		container.NewVBox(
			widget.NewSeparator(),
			patchBox,
		),
		analysisBox,
	)

	myWindow.SetContent(mainContent)
	if cfgErr != nil {
		dialog.ShowError(fmt.Errorf("配置加载失败，使用默认配置: %w", cfgErr), myWindow)
		statusLabel.SetText("使用默认配置")
	}
	myWindow.ShowAndRun()
}

// analyzeFile renders the text report and decodes every icon for the
// gallery. Icons that fail to decode are left out of the gallery.
func analyzeFile(path string, cfg *config.Config, logger log.Interface) (string, []iconPreview, error) {
	reader, err := pe.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = reader.Close() }()

	analyzer := pe.NewAnalyzer(reader)
	analyzer.SetLogger(logger)
	info, err := analyzer.Analyze()
	if err != nil {
		return "", nil, err
	}

	color.NoColor = true
	var report bytes.Buffer
	reporter := cli.NewReporter(info)
	reporter.SetOutput(&report)
	reporter.SetVerbose(cfg.Verbose)
	reporter.SetShowTree(true)
	reporter.Print()

	m, err := pe.LoadResources(reader, rsrc.WithLogger(logger))
	if err != nil {
		return "", nil, err
	}
	if !m.HasIcons() {
		return report.String(), nil, nil
	}
	icons, err := m.Icons()
	if err != nil {
		return report.String(), nil, nil
	}

	var previews []iconPreview
	for _, icon := range icons {
		img, err := iconimg.Decode(icon)
		if err != nil {
			logger.WithError(err).WithField("id", icon.ID).Debug("icon preview skipped")
			continue
		}
		w, h := icon.Size()
		previews = append(previews, iconPreview{
			Label: fmt.Sprintf("#%d %dx%d", icon.ID, w, h),
			Image: iconimg.Thumbnail(img, thumbnailSize),
		})
	}
	return report.String(), previews, nil
}

// withResources loads the resources of path, lets edit change them and
// writes them back, keeping a backup and the checksum as configured.
func withResources(path string, cfg *config.Config, logger log.Interface, edit func(m *rsrc.Manager) error) error {
	if cfg.Backup {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("创建备份失败: %w", err)
		}
		if err := os.WriteFile(path+".bak", data, 0666); err != nil {
			return fmt.Errorf("创建备份失败: %w", err)
		}
	}

	patcher, err := pe.NewPatcher(path)
	if err != nil {
		return err
	}
	defer func() { _ = patcher.Close() }()
	patcher.SetSectionName(cfg.SectionName)

	lang, err := cfg.Lang()
	if err != nil {
		return err
	}
	m, err := patcher.Resources(rsrc.WithLogger(logger), rsrc.WithDefaultLang(rsrc.LangID(lang)))
	if err != nil {
		return err
	}
	if err := edit(m); err != nil {
		return err
	}
	if _, err := patcher.ReplaceResources(m); err != nil {
		return err
	}

	if cfg.UpdateChecksum {
		return patcher.UpdateChecksum()
	}
	return nil
}

// patchIcon adds every image of iconPath, or replaces icon idText with its
// largest image when idText is set.
func patchIcon(path, iconPath, idText string, cfg *config.Config, logger log.Interface) (string, error) {
	f, err := os.Open(iconPath)
	if err != nil {
		return "", fmt.Errorf("打开图标文件失败: %w", err)
	}
	icons, err := iconimg.Load(f, cfg.IconSizes)
	_ = f.Close()
	if err != nil {
		return "", err
	}
	if len(icons) == 0 {
		return "", fmt.Errorf("图标文件不含任何图像")
	}

	var msg string
	err = withResources(path, cfg, logger, func(m *rsrc.Manager) error {
		if idText != "" {
			id, err := strconv.ParseUint(idText, 0, 16)
			if err != nil {
				return fmt.Errorf("无效的图标ID: %s", idText)
			}
			if err := m.ChangeIcon(rsrc.Icon{ID: uint16(id)}, icons[0]); err != nil {
				return fmt.Errorf("替换图标失败: %w", err)
			}
			msg = fmt.Sprintf("成功替换图标 ID %d", id)
			return nil
		}

		var ids []string
		for _, icon := range icons {
			added, err := m.AddIcon(icon)
			if err != nil {
				return fmt.Errorf("添加图标失败: %w", err)
			}
			ids = append(ids, strconv.Itoa(int(added.ID)))
		}
		msg = fmt.Sprintf("成功添加 %d 个图标 (ID: %s)", len(ids), strings.Join(ids, ", "))
		return nil
	})
	return msg, err
}

func patchManifest(path, manifestPath string, cfg *config.Config, logger log.Interface) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("读取清单文件失败: %w", err)
	}
	return withResources(path, cfg, logger, func(m *rsrc.Manager) error {
		if err := m.SetManifest(string(data)); err != nil {
			return fmt.Errorf("替换清单失败: %w", err)
		}
		return nil
	})
}
