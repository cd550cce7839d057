// Package ui is the terminal front end: a bot list, the current session and
// an input box.
package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"botchat/bots"
	"botchat/catalog"
	"botchat/chat"
	"botchat/config"
	"botchat/conversation"
	"botchat/model"
	"botchat/storage"
)

const sidebarWidth = 26

type viewMode int

const (
	modeChat viewMode = iota
	modeBots
	modeKey
	modeSearch
	modeHelp
	modePassphrase
)

type keyMap struct {
	Send        key.Binding
	Cancel      key.Binding
	Quit        key.Binding
	NewSession  key.Binding
	DelSession  key.Binding
	NextSession key.Binding
	PrevSession key.Binding
	Bots        key.Binding
	Quote       key.Binding
	Copy        key.Binding
	APIKey      key.Binding
	Verify      key.Binding
	Export      key.Binding
	Search      key.Binding
	Help        key.Binding
	Up          key.Binding
	Down        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NewSession:  key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new session")),
		DelSession:  key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "delete session")),
		NextSession: key.NewBinding(key.WithKeys("alt+n"), key.WithHelp("alt+n", "next session")),
		PrevSession: key.NewBinding(key.WithKeys("alt+p"), key.WithHelp("alt+p", "previous session")),
		Bots:        key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "bots")),
		Quote:       key.NewBinding(key.WithKeys("ctrl+q"), key.WithHelp("ctrl+q", "quote last reply")),
		Copy:        key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy last reply")),
		APIKey:      key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "API key")),
		Verify:      key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "verify keys")),
		Export:      key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "export session")),
		Search:      key.NewBinding(key.WithKeys("alt+f"), key.WithHelp("alt+f", "search messages")),
		Help:        key.NewBinding(key.WithKeys("alt+h"), key.WithHelp("alt+h", "help")),
		Up:          key.NewBinding(key.WithKeys("up")),
		Down:        key.NewBinding(key.WithKeys("down")),
	}
}

// Options are the collaborators the view drives. Credentials is unlocked
// from the view when its SSH key is encrypted.
type Options struct {
	Service     *chat.Service
	Store       *conversation.Store
	Bots        *bots.Registry
	Catalog     *catalog.Catalog
	Credentials *config.CredentialStore
	DataDir     string
	ExportDir   string
	Version     string
	Logger      *zap.Logger
}

type AppView struct {
	svc       *chat.Service
	store     *conversation.Store
	bots      *bots.Registry
	catalog   *catalog.Catalog
	creds     *config.CredentialStore
	dataDir   string
	exportDir string
	version   string
	logger    *zap.Logger
	keys      keyMap

	viewport    viewport.Model
	textarea    textarea.Model
	spinner     spinner.Model
	filterInput textinput.Model
	keyInput    textinput.Model
	searchInput textinput.Model
	passInput   textinput.Model

	width  int
	height int
	ready  bool

	mode viewMode

	// Bot picker
	botMatches []model.Bot
	botCursor  int

	// supplier whose key is being edited
	keySupplier string

	passErr string
	// key save waiting for the passphrase
	pending *pendingKey

	searchResults []storage.MessageMatch
	searchCursor  int

	changes     chan struct{}
	unsubscribe func()

	streaming     bool
	cancelStream  context.CancelFunc
	status        string
	statusIsError bool
}

func NewAppView(opts Options) AppView {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Type your message here..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Alt+Enter for newline, Enter alone sends
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	filterInput := textinput.New()
	filterInput.Prompt = "Filter: "
	filterInput.CharLimit = 64

	keyInput := textinput.New()
	keyInput.Prompt = "API key: "
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'

	searchInput := textinput.New()
	searchInput.Prompt = "Search all: "
	searchInput.CharLimit = 100

	passInput := textinput.New()
	passInput.Placeholder = "Enter passphrase"
	passInput.Width = 50
	passInput.CharLimit = 200
	passInput.EchoMode = textinput.EchoPassword
	passInput.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	// A one-slot channel coalesces bursts of store events into one redraw.
	changes := make(chan struct{}, 1)
	unsubscribe := opts.Store.Subscribe(func(conversation.Event) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	a := AppView{
		svc:         opts.Service,
		store:       opts.Store,
		bots:        opts.Bots,
		catalog:     opts.Catalog,
		creds:       opts.Credentials,
		dataDir:     opts.DataDir,
		exportDir:   opts.ExportDir,
		version:     opts.Version,
		logger:      logger.Named("ui"),
		keys:        defaultKeyMap(),
		viewport:    viewport.New(0, 0),
		textarea:    ta,
		spinner:     sp,
		filterInput: filterInput,
		keyInput:    keyInput,
		searchInput: searchInput,
		passInput:   passInput,
		changes:     changes,
		unsubscribe: unsubscribe,
	}
	if a.creds != nil && a.creds.NeedsPassphrase() {
		a.openPassphrase(nil)
	}
	return a
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForChange(a.changes))
}

// Close detaches the view from the store.
func (a AppView) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}
