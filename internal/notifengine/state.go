package notifengine

import (
	"strconv"

	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/evaluate"
	"github.com/lttng/notifd/internal/trigobj"
)

// state holds the five hash indexes of spec.md §4.3 plus the
// secondary indexes the table enumerates, and the monotonic counters
// used to allocate trigger tokens and auto-generated names. It is
// mutated only by the engine's single event-loop goroutine, which is
// what the source's RCU/lock-free hashing bought it: no other
// goroutine ever touches these maps, so no locking is needed here.
type state struct {
	clientsByConn map[any]*Client // keyed by net.Conn identity
	clientsByID   map[string]*Client

	channels        map[cmdqueue.ChannelKey]*cmdqueue.ChannelInfo
	channelTriggers map[cmdqueue.ChannelKey][]*trigobj.Trigger
	channelState    map[cmdqueue.ChannelKey]*evaluate.Sample

	notificationTriggerClients map[uint64][]*Client
	triggers                   map[uint64]*trigobj.Trigger
	triggersByName             map[string]*trigobj.Trigger
	triggerTokens              map[uint64]*trigobj.Trigger
	triggerOwner               map[string]cmdqueue.Credentials

	nextTriggerToken      uint64
	nextTriggerNameOffset uint64
}

func newState() *state {
	return &state{
		clientsByConn:              make(map[any]*Client),
		clientsByID:                make(map[string]*Client),
		channels:                   make(map[cmdqueue.ChannelKey]*cmdqueue.ChannelInfo),
		channelTriggers:            make(map[cmdqueue.ChannelKey][]*trigobj.Trigger),
		channelState:               make(map[cmdqueue.ChannelKey]*evaluate.Sample),
		notificationTriggerClients: make(map[uint64][]*Client),
		triggers:                   make(map[uint64]*trigobj.Trigger),
		triggersByName:             make(map[string]*trigobj.Trigger),
		triggerTokens:              make(map[uint64]*trigobj.Trigger),
		triggerOwner:               make(map[string]cmdqueue.Credentials),
		nextTriggerToken:           1, // 0 means "no token" (Trigger.HasToken == false)
	}
}

// allocateTriggerName generates "trigger_<offset>" for a trigger
// registered without an explicit name (spec.md §3).
func (s *state) allocateTriggerName() string {
	s.nextTriggerNameOffset++
	return triggerNamePrefix(s.nextTriggerNameOffset)
}

func triggerNamePrefix(offset uint64) string {
	return "trigger_" + strconv.FormatUint(offset, 10)
}

// allocateTriggerToken returns the next monotonically increasing
// token, never reusing one within the process (spec.md §3).
func (s *state) allocateTriggerToken() uint64 {
	t := s.nextTriggerToken
	s.nextTriggerToken++
	return t
}

// applicableToChannel reports whether trigger's condition attaches to
// the channel identified by (session, channel, domain) per spec.md
// §4.3's applicability rule.
func applicableToChannel(t *trigobj.Trigger, session, channel string, domain trigobj.Domain) bool {
	return t.Condition.AppliesToChannel(session, channel, domain)
}
