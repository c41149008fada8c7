package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alekspetrov/turma/internal/comms"
	"github.com/alekspetrov/turma/internal/testutil"
)

const (
	grp   = "120363-9@g.us"
	admin = "5511922222222@s.whatsapp.net"
	user  = "5511933333333@s.whatsapp.net"
)

type fakeDisabler struct {
	disabled map[string]bool
	err      error
	block    bool
}

func (f *fakeDisabler) IsCommandDisabled(ctx context.Context, groupID, command string) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if f.err != nil {
		return false, f.err
	}
	return f.disabled[groupID+"/"+command], nil
}

type fakeUsage struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakeUsage) IncrementUsage(_ context.Context, chatID, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.counts[chatID+"/"+command]++
	return nil
}

type harness struct {
	transport *testutil.FakeTransport
	disabler  *fakeDisabler
	usage     *fakeUsage
	registry  *Registry
	dispatch  *Dispatcher
	ran       []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: testutil.NewFakeTransport(),
		disabler:  &fakeDisabler{disabled: make(map[string]bool)},
		usage:     &fakeUsage{counts: make(map[string]int)},
		registry:  NewRegistry(),
	}
	h.transport.AddGroup(grp, "Turma", []string{admin, user}, []string{admin})

	record := func(ctx context.Context, inv *Invocation) error {
		h.ran = append(h.ran, inv.Name+":"+inv.RawArgs())
		return inv.Reply(ctx, "ok "+inv.Name)
	}
	h.registry.MustRegister(
		&Command{Name: "ping", Run: record},
		&Command{Name: "fotos", Aliases: []string{"iniciarfotos"}, Scope: ScopeGroup, Run: record},
		&Command{Name: "segredo", Scope: ScopePrivate, Run: record},
		&Command{Name: "desativar", Scope: ScopeGroup, AdminOnly: true, AlwaysOn: true, Run: record},
		&Command{Name: "quebra", Run: func(context.Context, *Invocation) error {
			var m map[string]int
			m["boom"]++
			return nil
		}},
		&Command{Name: "falha", Run: func(context.Context, *Invocation) error {
			return errors.New("database is locked")
		}},
		&Command{Name: "recusa", Run: func(context.Context, *Invocation) error {
			return comms.SoftError("Não tem nenhum jogo ativo aqui agora.")
		}},
	)
	h.dispatch = NewDispatcher(h.registry, h.transport, h.disabler, h.usage, Config{
		Prefix:         "!",
		DisableTimeout: 20 * time.Millisecond,
	})
	return h
}

func groupMsg(sender string) *comms.InboundEvent {
	return &comms.InboundEvent{ID: "m", ChatID: grp, GroupID: grp, SenderID: sender, Kind: comms.KindText}
}

func privateMsg(sender string) *comms.InboundEvent {
	return &comms.InboundEvent{ID: "m", ChatID: sender, SenderID: sender, Kind: comms.KindText}
}

func TestExecute_ResolvesAliasAndArgs(t *testing.T) {
	h := newHarness(t)
	if err := h.dispatch.Execute(context.Background(), groupMsg(user), "!IniciarFotos  agora  já"); err != nil {
		t.Fatal(err)
	}
	if len(h.ran) != 1 || h.ran[0] != "fotos:agora já" {
		t.Fatalf("ran = %v", h.ran)
	}
	h.dispatch.Wait()
	if h.usage.counts[grp+"/fotos"] != 1 {
		t.Errorf("usage = %v, want fotos counted once under its canonical name", h.usage.counts)
	}
}

func TestExecute_NotFoundSuggests(t *testing.T) {
	h := newHarness(t)
	_ = h.dispatch.Execute(context.Background(), groupMsg(user), "!pnig")

	reply := h.transport.LastTextTo(grp)
	if !strings.Contains(reply, "não existe") || !strings.Contains(reply, "!ping") {
		t.Errorf("reply = %q", reply)
	}
	if len(h.ran) != 0 {
		t.Error("nothing should run")
	}
}

func TestExecute_Disabled(t *testing.T) {
	h := newHarness(t)
	h.disabler.disabled[grp+"/ping"] = true
	h.disabler.disabled[grp+"/desativar"] = true

	_ = h.dispatch.Execute(context.Background(), groupMsg(admin), "!ping")
	if len(h.ran) != 0 || !strings.Contains(h.transport.LastTextTo(grp), "desativado") {
		t.Errorf("disabled command ran: %v", h.ran)
	}

	// Disablement is per group.
	_ = h.dispatch.Execute(context.Background(), privateMsg(user), "!ping")
	if len(h.ran) != 1 {
		t.Errorf("ping must run in private chats, ran = %v", h.ran)
	}

	_ = h.dispatch.Execute(context.Background(), groupMsg(admin), "!desativar ping")
	if len(h.ran) != 2 {
		t.Errorf("always-on command was blocked, ran = %v", h.ran)
	}
}

func TestExecute_DisableLookupNeverBlocks(t *testing.T) {
	for name, d := range map[string]*fakeDisabler{
		"error":   {err: errors.New("store down")},
		"timeout": {block: true},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.dispatch.disabler = d
			_ = h.dispatch.Execute(context.Background(), groupMsg(user), "!ping")
			if len(h.ran) != 1 {
				t.Errorf("command must run when the lookup fails, ran = %v", h.ran)
			}
		})
	}
}

func TestExecute_ScopeAndAdmin(t *testing.T) {
	tests := []struct {
		name    string
		ev      *comms.InboundEvent
		text    string
		wantRun bool
		reply   string
	}{
		{"group command in private", privateMsg(user), "!fotos", false, "só funciona em grupos"},
		{"private command in group", groupMsg(user), "!segredo", false, "só funciona no privado"},
		{"admin command by member", groupMsg(user), "!desativar ping", false, "Só admins"},
		{"admin command by admin", groupMsg(admin), "!desativar ping", true, "ok desativar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_ = h.dispatch.Execute(context.Background(), tt.ev, tt.text)
			if (len(h.ran) == 1) != tt.wantRun {
				t.Errorf("ran = %v, want run %v", h.ran, tt.wantRun)
			}
			if got := h.transport.LastTextTo(tt.ev.ChatID); !strings.Contains(got, tt.reply) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.reply)
			}
		})
	}
}

func TestExecute_OwnerIsAdminEverywhere(t *testing.T) {
	h := newHarness(t)
	h.dispatch.cfg.OwnerIDs = []string{user}
	_ = h.dispatch.Execute(context.Background(), groupMsg(user), "!desativar ping")
	if len(h.ran) != 1 {
		t.Errorf("owner blocked from admin command")
	}
}

func TestExecute_ErrorsBecomeReplies(t *testing.T) {
	tests := []struct {
		text  string
		reply string
	}{
		{"!quebra", comms.Apology},
		{"!falha", comms.Apology},
		{"!recusa", "Não tem nenhum jogo ativo aqui agora."},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := newHarness(t)
			if err := h.dispatch.Execute(context.Background(), groupMsg(user), tt.text); err != nil {
				t.Fatalf("Execute returned %v", err)
			}
			if got := h.transport.LastTextTo(grp); got != tt.reply {
				t.Errorf("reply = %q, want %q", got, tt.reply)
			}
			h.dispatch.Wait()
		})
	}
}

func TestExecute_UsageFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.usage.err = errors.New("write failed")
	_ = h.dispatch.Execute(context.Background(), groupMsg(user), "!ping")
	h.dispatch.Wait()
	if h.transport.LastTextTo(grp) != "ok ping" {
		t.Errorf("reply = %q", h.transport.LastTextTo(grp))
	}
}

func TestExecute_IgnoresNonCommands(t *testing.T) {
	h := newHarness(t)
	for _, text := range []string{"ping", "!", "!   "} {
		if err := h.dispatch.Execute(context.Background(), groupMsg(user), text); err != nil {
			t.Fatal(err)
		}
	}
	if len(h.transport.Sent()) != 0 {
		t.Errorf("sent %d messages for non-commands", len(h.transport.Sent()))
	}
}

func TestInvoke(t *testing.T) {
	h := newHarness(t)
	if err := h.dispatch.Invoke(context.Background(), groupMsg(user), "ping", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if len(h.ran) != 1 || h.ran[0] != "ping:a b" {
		t.Errorf("ran = %v", h.ran)
	}
}
