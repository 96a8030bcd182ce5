package txadmin

import (
	"fmt"
	"strings"
	"time"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// pages
const (
	pageTemplates = "templates"
	pageSpacers   = "spacers"
	pageApply     = "apply"
	pageResult    = "result"
)

// spacerForm holds the values typed into the spacer inputs of one template.
type spacerForm struct {
	template bantemplate.Template
	values   map[string]string
}

func newSpacerForm(t bantemplate.Template) *spacerForm {
	return &spacerForm{
		template: t,
		values:   bantemplate.InitialValues(t),
	}
}

func (f *spacerForm) Set(name, value string) {
	f.values[name] = value
}

// Application resolves the template. Blank inputs fall back to the spacer placeholders.
func (f *spacerForm) Application() bantemplate.Application {
	return bantemplate.ApplyTemplate(f.template, bantemplate.CompactValues(f.values))
}

// Record is the ban the form issues at now.
func (f *spacerForm) Record(now time.Time) bantemplate.BanRecord {
	return bantemplate.Issue(f.template, bantemplate.CompactValues(f.values), now)
}

func (f *spacerForm) Preview() string {
	app := f.Application()
	return fmt.Sprintf("[yellow]Reason:[-] %s\n[yellow]Duration:[-] %s", tview.Escape(app.Reason), app.Duration.LongString())
}

// spacerTitle is the heading of the spacer inputs, e.g. "Spacers (2)".
func spacerTitle(t bantemplate.Template) string {
	return fmt.Sprintf("| Spacers (%d) - leave empty to use defaults |", len(t.Spacers))
}

// UI is the terminal ban form: pick a template, fill its spacers, ban a player.
type UI struct {
	App   *tview.Application
	Pages *tview.Pages

	templates bantemplate.TemplateStore
	bans      bantemplate.BanMgr
	logger    Logger
	now       func() time.Time

	filter *tview.InputField
	list   *tview.List
	shown  []bantemplate.Template
}

func NewUI(templates bantemplate.TemplateStore, bans bantemplate.BanMgr, title string, logger Logger) *UI {
	ui := &UI{
		App:       tview.NewApplication(),
		Pages:     tview.NewPages(),
		templates: templates,
		bans:      bans,
		logger:    logger,
		now:       time.Now,
		filter:    tview.NewInputField(),
		list:      tview.NewList(),
	}

	ui.filter.
		SetLabel("/ ").
		SetPlaceholder("search templates").
		SetFieldBackgroundColor(tcell.ColorDimGray).
		SetChangedFunc(func(text string) {
			ui.renderList(text)
		}).
		SetDoneFunc(func(key tcell.Key) {
			ui.App.SetFocus(ui.list)
		})
	ui.filter.Box.SetBorder(true).SetTitle("| Filter |")

	ui.list.ShowSecondaryText(false)
	ui.list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyRune && event.Rune() == '/':
			ui.App.SetFocus(ui.filter)
			return nil
		case event.Key() == tcell.KeyEsc:
			ui.App.Stop()
			return nil
		}
		return event
	})
	ui.list.Box.SetBorder(true).SetTitle(fmt.Sprintf("| %s: Ban Templates |", title))

	home := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.filter, 3, 0, false).
		AddItem(ui.list, 0, 1, true)

	ui.Pages.AddPage(pageTemplates, home, true, true)
	ui.renderList("")

	return ui
}

func (ui *UI) Start() error {
	return ui.App.SetRoot(ui.Pages, true).SetFocus(ui.list).Run()
}

// renderList shows the templates matching query.
func (ui *UI) renderList(query string) {
	ui.shown = ui.templates.Search(query)

	ui.list.Clear()
	for _, tmpl := range ui.shown {
		tmpl := tmpl
		ui.list.AddItem(tview.Escape(bantemplate.ListEntry(tmpl)), "", 0, func() {
			ui.selectTemplate(tmpl)
		})
	}
}

func (ui *UI) selectTemplate(tmpl bantemplate.Template) {
	form := newSpacerForm(tmpl)
	if !tmpl.HasSpacers() {
		ui.showApply(form)
		return
	}

	preview := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	preview.Box.SetBorder(true).SetTitle("| Preview |")
	preview.SetText(form.Preview())

	inputs := tview.NewForm()
	for _, spacer := range tmpl.Spacers {
		name := spacer.Name
		field := tview.NewInputField().
			SetLabel(name).
			SetPlaceholder(spacer.Placeholder).
			SetChangedFunc(func(text string) {
				form.Set(name, text)
				preview.SetText(form.Preview())
			})
		inputs.AddFormItem(field)
	}
	inputs.AddButton("Apply", func() {
		ui.Pages.RemovePage(pageSpacers)
		ui.showApply(form)
	})
	inputs.AddButton("Cancel", ui.backToList(pageSpacers))
	inputs.SetCancelFunc(ui.backToList(pageSpacers))
	inputs.Box.SetBorder(true).SetTitle(spacerTitle(tmpl))

	page := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(inputs, 0, 2, true).
		AddItem(preview, 5, 0, false)

	ui.Pages.AddPage(pageSpacers, page, true, true)
}

func (ui *UI) showApply(form *spacerForm) {
	app := form.Application()

	summary := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	summary.SetText(form.Preview())

	applyForm := tview.NewForm()
	applyForm.AddInputField("Identifier", "", 40, nil, nil)
	applyForm.AddButton("Ban", func() {
		identifier := strings.TrimSpace(applyForm.GetFormItem(0).(*tview.InputField).GetText())
		if identifier == "" {
			return
		}

		record := form.Record(ui.now())
		if err := ui.bans.Add(identifier, record); err != nil {
			ui.logger.Errorw("add ban", "identifier", identifier, "err", err)
			ui.showResult(tview.Escape(fmt.Sprintf("Failed to ban %s: %v", identifier, err)))
			return
		}

		ui.logger.Infow("ban issued", "identifier", identifier, "template", form.template.ID, "until", record.Until)
		ui.showResult(banResultText(identifier, record))
	})
	applyForm.AddButton("Cancel", ui.backToList(pageApply))
	applyForm.SetCancelFunc(ui.backToList(pageApply))

	page := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(summary, 4, 0, false).
		AddItem(applyForm, 0, 1, true)
	page.Box.SetBorder(true).SetTitle(fmt.Sprintf("| Ban: %s |", app.Selection))

	ui.Pages.AddPage(pageApply, page, true, true)
}

func (ui *UI) showResult(text string) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Ok"}).
		SetDoneFunc(func(int, string) {
			ui.Pages.RemovePage(pageResult)
			ui.backToList(pageApply)()
		})

	ui.Pages.AddPage(pageResult, modal, false, true)
}

func (ui *UI) backToList(page string) func() {
	return func() {
		ui.Pages.RemovePage(page)
		ui.Pages.SwitchToPage(pageTemplates)
		ui.App.SetFocus(ui.list)
	}
}

func banResultText(identifier string, record bantemplate.BanRecord) string {
	if record.Until == nil {
		return fmt.Sprintf("Banned %s permanently.\n%s", tview.Escape(identifier), tview.Escape(record.Reason))
	}
	return fmt.Sprintf("Banned %s until %s.\n%s", tview.Escape(identifier), record.Until.Format(time.RFC1123), tview.Escape(record.Reason))
}
