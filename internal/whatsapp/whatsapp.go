// Package whatsapp connects the bot to WhatsApp through whatsmeow.
//
// The adapter is a thin shell: it translates transport events into bus
// messages and exposes a send capability. Reconnection, encryption, and
// device-state persistence are whatsmeow's responsibility.
package whatsapp

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/lromero/chatvault/internal/bus"
)

// Adapter bridges a whatsmeow client and the message bus. It implements
// the engine's Sender interface.
type Adapter struct {
	client *whatsmeow.Client
	bus    *bus.MessageBus
}

// New opens the device store at dbPath and builds the client. Pairing
// state persists in the store, so the QR step only happens on first run.
func New(dbPath string, msgBus *bus.MessageBus) (*Adapter, error) {
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(context.Background(), "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), dbLog)
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}

	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}

	a := &Adapter{
		client: whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true)),
		bus:    msgBus,
	}
	a.client.AddEventHandler(a.handleEvent)
	return a, nil
}

// Connect starts the transport. On an unpaired device it prints a QR code
// and blocks until pairing finishes or ctx is cancelled.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client.Store.ID != nil {
		return a.client.Connect()
	}

	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("requesting QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			log.Println("[WhatsApp] Scan the QR code to pair:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			log.Println("[WhatsApp] Pairing complete")
		case "timeout":
			return fmt.Errorf("pairing timed out")
		}
	}
	return nil
}

// Disconnect shuts down the transport.
func (a *Adapter) Disconnect() {
	a.client.Disconnect()
}

// Send delivers a text message to a contact.
func (a *Adapter) Send(ctx context.Context, contactID, text string) error {
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return fmt.Errorf("invalid contact %q: %w", contactID, err)
	}
	_, err = a.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		return fmt.Errorf("sending to %s: %w", contactID, err)
	}
	return nil
}

func (a *Adapter) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		a.handleMessage(v)
	case *events.Connected:
		log.Println("[WhatsApp] Client ready")
	case *events.Disconnected:
		log.Println("[WhatsApp] Disconnected")
	case *events.LoggedOut:
		log.Println("[WhatsApp] Logged out, delete the device store and pair again")
	}
}

// handleMessage translates one transport event into a bus message. Media
// bytes are not fetched here; the engine downloads them only when it
// decides the payload is persisted.
func (a *Adapter) handleMessage(v *events.Message) {
	if v.Info.IsFromMe {
		return
	}

	msg := bus.InboundMessage{
		ID:        uuid.NewString(),
		ContactID: v.Info.Chat.String(),
		PushName:  v.Info.PushName,
		IsStatus:  v.Info.Chat == types.StatusBroadcastJID,
		MediaKind: bus.MediaNone,
		Timestamp: v.Info.Timestamp,
	}

	raw := v.Message
	switch {
	case raw.GetImageMessage() != nil:
		msg.MediaKind = bus.MediaImage
		msg.Body = raw.GetImageMessage().GetCaption()
		msg.Download = a.downloader(raw)
	case raw.GetVideoMessage() != nil:
		msg.MediaKind = bus.MediaVideo
		msg.Body = raw.GetVideoMessage().GetCaption()
		msg.Download = a.downloader(raw)
	case raw.GetDocumentMessage() != nil:
		doc := raw.GetDocumentMessage()
		msg.MediaKind = bus.MediaDocument
		msg.Body = doc.GetCaption()
		if msg.Body == "" {
			msg.Body = doc.GetFileName()
		}
		msg.Download = a.downloader(raw)
	case raw.GetAudioMessage() != nil, raw.GetStickerMessage() != nil:
		msg.MediaKind = bus.MediaOther
		msg.Download = a.downloader(raw)
	case raw.GetConversation() != "":
		msg.Body = raw.GetConversation()
	case raw.GetExtendedTextMessage() != nil:
		msg.Body = raw.GetExtendedTextMessage().GetText()
	}

	a.bus.PublishInbound(msg)
}

func (a *Adapter) downloader(raw *waE2E.Message) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		return a.client.DownloadAny(ctx, raw)
	}
}
