package tray

import (
	"context"
	"fmt"

	"github.com/getlantern/systray"
	"github.com/petems/spectro-tray/internal/config"
	"github.com/rs/zerolog"
)

// Controller is the slice of the capture orchestrator the tray drives.
type Controller interface {
	ToggleCapture(ctx context.Context) error
	IsRecording() bool
	CurrentDeviceName() string
}

type UI struct {
	ctrl    Controller
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	// OnOverlay is invoked when the overlay-mode checkbox toggles.
	onOverlay func(bool)

	// Menu items
	mStartStop *systray.MenuItem
	mDevice    *systray.MenuItem
	mOverlay   *systray.MenuItem
}

// Status update methods for the orchestrator's state notifications
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	u.refreshMenu()
}

func (u *UI) SetRecording() {
	u.updateStatus("recording")
	u.refreshMenu()
}

func (u *UI) SetError() {
	u.updateStatus("error")
	u.refreshMenu()
}

func New(ctrl Controller, cfg *config.Config, onOverlay func(bool), version, commit string, log zerolog.Logger) *UI {
	return &UI{
		ctrl:      ctrl,
		cfg:       cfg,
		onOverlay: onOverlay,
		version:   version,
		commit:    commit,
		log:       log,
	}
}

// SetController sets the orchestrator reference (for circular dependency resolution)
func (u *UI) SetController(ctrl Controller) {
	u.ctrl = ctrl
}

func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("System audio spectrum")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Capture", "Start or stop loopback capture")
	systray.AddSeparator()

	u.mDevice = systray.AddMenuItem("Device: (none)", "Current render device")
	u.mDevice.Disable()
	systray.AddSeparator()

	u.mOverlay = systray.AddMenuItemCheckbox("Overlay Mode", "Faster smoothing for overlay rendering", false)

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About SpectroTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.refreshMenu()

	// Event loop
	go u.handleEvents(mAbout, mQuit)
}

func (u *UI) handleEvents(mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggleCapture()
		case <-u.mOverlay.ClickedCh:
			u.toggleOverlay()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) showAbout() {
	fmt.Printf("SpectroTray %s (%s)\nSystem audio spectrum, %d bars\n",
		u.version, u.commit, u.cfg.Spectrum.Bars)
}

func (u *UI) toggleCapture() {
	if u.ctrl == nil {
		return
	}
	if err := u.ctrl.ToggleCapture(context.Background()); err != nil {
		// Busy means another transition is mid-flight; the state
		// notification will refresh the menu when it lands.
		u.log.Warn().Err(err).Msg("toggle capture rejected")
	}
	u.refreshMenu()
}

func (u *UI) toggleOverlay() {
	var on bool
	if u.mOverlay.Checked() {
		u.mOverlay.Uncheck()
	} else {
		u.mOverlay.Check()
		on = true
	}
	if u.onOverlay != nil {
		u.onOverlay(on)
	}
	u.log.Info().Bool("overlay", on).Msg("overlay mode toggled")
}

// refreshMenu syncs the menu labels with the orchestrator state.
func (u *UI) refreshMenu() {
	if u.ctrl == nil || u.mStartStop == nil {
		return
	}
	if u.ctrl.IsRecording() {
		u.mStartStop.SetTitle("Stop Capture")
	} else {
		u.mStartStop.SetTitle("Start Capture")
	}
	name := u.ctrl.CurrentDeviceName()
	if name == "" {
		name = "(none)"
	}
	u.mDevice.SetTitle(fmt.Sprintf("Device: %s", name))
}

func (u *UI) onExit() {
	// Cleanup
}

// updateStatus sets the tray title with a status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("📊 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - capturing
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
