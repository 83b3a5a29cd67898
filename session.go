package cmrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/jaskie/componentmodelrpc/codec"
	"go.uber.org/zap"
)

// Session owns one physical duplex stream and the three workers that keep
// it ordered: a reader that frames incoming envelopes, a writer that
// serializes outgoing ones, and (on the serving side) a dispatcher that
// drains a bounded queue so a slow method call never blocks the reader
// from seeing the next frame.
type Session struct {
	cfg  SessionConfig
	conn io.ReadWriteCloser
	fw   *frameWriter
	fr   *frameReader
	log  *zap.Logger

	serverResolver *ServerResolver
	rootFactory    RootObjectFactory
	principal      Principal

	clientResolver *ClientResolver

	mu        sync.Mutex
	pending   map[string]chan *Envelope
	eventSubs map[Identifier]map[string]func()
	exposed   map[Identifier]struct{}
	closed    bool
	closeErr  error

	writeCh   chan *Envelope
	dispatchQ chan *Envelope
	done      chan struct{}
}

func newSession(conn io.ReadWriteCloser, opts []Option) *Session {
	cfg := defaultSessionConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		cfg:       cfg,
		conn:      conn,
		fw:        newFrameWriter(conn),
		fr:        newFrameReader(conn, cfg.MaxFrameSize),
		log:       cfg.Logger,
		pending:   make(map[string]chan *Envelope),
		eventSubs: make(map[Identifier]map[string]func()),
		exposed:   make(map[Identifier]struct{}),
		writeCh:   make(chan *Envelope, cfg.QueueDepth),
		done:      make(chan struct{}),
	}
}

// NewClientSession wraps conn as the caller's half of a session: it can
// issue RootQuery/Query/Get/Set/EventAdd/EventRemove and receives
// Response/Exception/EventNotification back.
func NewClientSession(conn io.ReadWriteCloser, opts ...Option) *Session {
	s := newSession(conn, opts)
	s.clientResolver = NewClientResolver()
	go s.readLoop()
	go s.writeLoop()
	return s
}

// NewServerSession wraps conn as the accepting half of a session: incoming
// requests are dispatched against resolver and the object rootFactory
// hands out for RootQuery.
//
// If the session is configured with WithPrincipalProvider, that provider
// is consulted before any worker goroutine starts; a rejected connection
// never has its reader, writer, or dispatcher spun up, and conn is left
// for the caller to close. Without a provider every connection is
// accepted anonymously under the given principal.
func NewServerSession(ctx context.Context, conn io.ReadWriteCloser, resolver *ServerResolver, rootFactory RootObjectFactory, principal Principal, opts ...Option) (*Session, error) {
	s := newSession(conn, opts)
	if s.cfg.PrincipalProvider != nil {
		authorized, err := s.cfg.PrincipalProvider.Authorize(ctx)
		if err != nil {
			return nil, &Error{Kind: ErrKindUnauthorized, Message: ErrUnauthorized.Message, Cause: err}
		}
		principal = authorized
	}
	s.serverResolver = resolver
	s.rootFactory = rootFactory
	s.principal = principal
	s.dispatchQ = make(chan *Envelope, s.cfg.QueueDepth)
	go s.readLoop()
	go s.writeLoop()
	go s.dispatchLoop()
	return s, nil
}

func (s *Session) finalizeQuiescence() time.Duration {
	if s.cfg.FinalizeQuiescence <= 0 {
		return defaultFinalizeQuiescence
	}
	return s.cfg.FinalizeQuiescence
}

// Close tears the session down, failing every pending completion with
// SessionClosed, releasing any event subscriptions this session held
// against server objects, and — on the serving side — dropping this
// session's exposure of every object it handed a reference to. An object
// exposed to more than one session (a shared root object, say) survives in
// the resolver until every exposing session has done the same.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = nil
	subs := s.eventSubs
	s.eventSubs = nil
	exposed := s.exposed
	s.exposed = nil
	s.mu.Unlock()

	close(s.done)
	err := s.conn.Close()

	for id, ch := range pending {
		ch <- exceptionTo(&Envelope{MessageGuid: id}, ErrSessionClosed)
		close(ch)
	}
	for _, byName := range subs {
		for _, unsub := range byName {
			unsub()
		}
	}
	if s.serverResolver != nil {
		for id := range exposed {
			s.serverResolver.removeReferenceById(id, s)
		}
	}
	return err
}

// trackExposed records that id was just exposed to this session, so Close
// can release exactly that set later. Called from ServerResolver, which
// owns the source of truth for which sessions currently hold an id
// exposed.
func (s *Session) trackExposed(id Identifier) {
	s.mu.Lock()
	if s.exposed != nil {
		s.exposed[id] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Session) send(env *Envelope) {
	select {
	case s.writeCh <- env:
	case <-s.done:
	}
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		payload, err := s.fr.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read loop stopped", zap.Error(err))
			}
			return
		}
		env, err := decodeEnvelope(payload)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.route(env)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case env := <-s.writeCh:
			data, err := env.encode()
			if err != nil {
				s.log.Warn("failed to encode envelope", zap.Error(err))
				continue
			}
			if err := s.fw.writeFrame(data); err != nil {
				s.log.Debug("write loop stopped", zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) route(env *Envelope) {
	switch env.MessageType {
	case MessageTypeResponse, MessageTypeException:
		s.completePending(env)
	case MessageTypeEventNotification:
		s.handleEventNotification(env)
	default:
		if s.serverResolver == nil && s.rootFactory == nil {
			s.log.Warn("received request-shaped envelope on a client-only session", zap.Stringer("type", env.MessageType))
			return
		}
		s.enqueueDispatch(env)
	}
}

func (s *Session) enqueueDispatch(env *Envelope) {
	select {
	case s.dispatchQ <- env:
	default:
		if env.MessageType == MessageTypeProxyFinalized {
			s.log.Warn("dropping ProxyFinalized under congestion", zap.String("dto", env.DtoGuid))
			return
		}
		s.send(exceptionTo(env, ErrCongestion))
	}
}

func (s *Session) dispatchLoop() {
	for {
		select {
		case env := <-s.dispatchQ:
			s.dispatchServer(env)
		case <-s.done:
			return
		}
	}
}

// completePending delivers a Response/Exception to whichever caller is
// waiting on its MessageGuid; envelopes with no matching waiter (a stray
// duplicate, or a reply arriving after the caller timed out) are dropped.
func (s *Session) completePending(env *Envelope) {
	s.mu.Lock()
	ch, ok := s.pending[env.MessageGuid]
	if ok {
		delete(s.pending, env.MessageGuid)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	ch <- env
	close(ch)
}

// handleEventNotification runs inline in readLoop: the client side has no
// dispatcher to hand event delivery off to. A handler that turns around and
// makes a synchronous proxy call will block this goroutine until that call
// times out, since the same reader is what would deliver its Response.
// Handlers that need to call back into a proxy should do so from another
// goroutine.
func (s *Session) handleEventNotification(env *Envelope) {
	if s.clientResolver == nil {
		return
	}
	dtoId, err := ParseIdentifier(env.DtoGuid)
	if err != nil {
		s.log.Warn("event notification with malformed dto id", zap.Error(err))
		return
	}
	proxy, ok := s.clientResolver.ResolveReference(dtoId, s)
	if !ok {
		return
	}
	value, err := s.cfg.Codec.Deserialize(env.ValueStream, clientSubstituter{s.clientResolver, s})
	if err != nil {
		s.log.Warn("failed to decode event payload", zap.Error(err))
		return
	}
	s.drainPopulation()
	if env.MemberName == "PropertyChanged" {
		if pc, ok := value.(map[string]any); ok {
			name, _ := pc["propertyName"].(string)
			proxy.setCachedProperty(name, pc["value"])
		}
	}
	proxy.dispatchEvent(env.MemberName, value)
}

// -- client-side call helpers, used by DynamicProxy --

func (s *Session) call(ctx context.Context, env *Envelope) (*Envelope, error) {
	ch := make(chan *Envelope, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.pending[env.MessageGuid] = ch
	s.mu.Unlock()

	s.send(env)

	timeout := s.cfg.RequestTimeout
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case reply := <-ch:
		if reply.MessageType == MessageTypeException {
			return nil, decodeExceptionEnvelope(reply)
		}
		return reply, nil
	case <-timeoutCh:
		s.mu.Lock()
		delete(s.pending, env.MessageGuid)
		s.mu.Unlock()
		return nil, ErrTimeout
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, env.MessageGuid)
		s.mu.Unlock()
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

func decodeExceptionEnvelope(env *Envelope) error {
	var summary exceptionSummary
	if len(env.ValueStream) > 0 {
		if err := json.Unmarshal(env.ValueStream, &summary); err == nil {
			return summary.toError()
		}
	}
	return ErrInvocationFailed
}

// RootQuery issues the initial request for a session's root object,
// returning the decoded DynamicProxy after the pending-population queue has
// been drained; its property cache starts empty.
func (s *Session) RootQuery(ctx context.Context) (*DynamicProxy, error) {
	reply, err := s.call(ctx, NewRootQuery())
	if err != nil {
		return nil, err
	}
	value, err := s.cfg.Codec.Deserialize(reply.ValueStream, clientSubstituter{s.clientResolver, s})
	if err != nil {
		return nil, err
	}
	s.drainPopulation()
	proxy, ok := value.(*DynamicProxy)
	if !ok {
		return nil, &Error{Kind: ErrKindProtocolViolation, Message: "root object is not a DTO reference"}
	}
	return proxy, nil
}

func (s *Session) drainPopulation() {
	for _, p := range s.clientResolver.TakeProxiesToPopulate() {
		p.populate(nil)
	}
}

func (s *Session) getProperty(ctx context.Context, dtoId Identifier, property string) (any, error) {
	reply, err := s.call(ctx, NewGet(dtoId.String(), property))
	if err != nil {
		return nil, err
	}
	v, err := s.cfg.Codec.Deserialize(reply.ValueStream, clientSubstituter{s.clientResolver, s})
	s.drainPopulation()
	return v, err
}

func (s *Session) setProperty(ctx context.Context, dtoId Identifier, property string, value any) error {
	data, err := s.cfg.Codec.Serialize(value, clientSubstituter{s.clientResolver, s})
	if err != nil {
		return err
	}
	_, err = s.call(ctx, NewSet(dtoId.String(), property, data))
	return err
}

func (s *Session) invokeMethod(ctx context.Context, dtoId Identifier, method string, args []any) (any, error) {
	data, err := s.cfg.Codec.Serialize(args, clientSubstituter{s.clientResolver, s})
	if err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, NewQuery(dtoId.String(), method, len(args), data))
	if err != nil {
		return nil, err
	}
	v, err := s.cfg.Codec.Deserialize(reply.ValueStream, clientSubstituter{s.clientResolver, s})
	s.drainPopulation()
	return v, err
}

func (s *Session) addEvent(ctx context.Context, dtoId Identifier, event string) error {
	_, err := s.call(ctx, NewEventAdd(dtoId.String(), event))
	return err
}

func (s *Session) removeEvent(ctx context.Context, dtoId Identifier, event string) error {
	_, err := s.call(ctx, NewEventRemove(dtoId.String(), event))
	return err
}

func (s *Session) sendProxyFinalized(id Identifier) {
	s.send(NewProxyFinalized(id.String()))
}

// -- server-side dispatch --

func (s *Session) dispatchServer(env *Envelope) {
	switch env.MessageType {
	case MessageTypeRootQuery:
		s.handleRootQuery(env)
	case MessageTypeQuery:
		s.handleQuery(env)
	case MessageTypeGet:
		s.handleGet(env)
	case MessageTypeSet:
		s.handleSet(env)
	case MessageTypeEventAdd:
		s.handleEventAdd(env)
	case MessageTypeEventRemove:
		s.handleEventRemove(env)
	case MessageTypeProxyFinalized:
		s.handleProxyFinalized(env)
	default:
		s.replyException(env, ErrProtocolViolation)
	}
}

func (s *Session) handleRootQuery(env *Envelope) {
	if s.rootFactory == nil {
		s.replyException(env, ErrUnknownTarget)
		return
	}
	root, err := s.rootFactory.RootObject(context.Background(), s.principal)
	if err != nil {
		s.replyException(env, &Error{Kind: ErrKindInvocationFailed, Message: err.Error()})
		return
	}
	s.replyResult(env, root)
}

func (s *Session) resolveTarget(env *Envelope) (Dto, bool) {
	dtoId, err := ParseIdentifier(env.DtoGuid)
	if err != nil {
		s.replyException(env, err)
		return nil, false
	}
	target := s.serverResolver.ResolveReference(dtoId)
	if target == nil {
		s.replyException(env, ErrUnknownTarget)
		return nil, false
	}
	return target, true
}

func (s *Session) handleQuery(env *Envelope) {
	target, ok := s.resolveTarget(env)
	if !ok {
		return
	}
	desc, rv := descriptorFor(target)
	m, ok := desc.findMethod(env.MemberName, env.ParametersCount)
	if !ok {
		if desc.hasMethodName(env.MemberName) {
			s.replyException(env, ErrArityMismatch)
		} else {
			s.replyException(env, ErrUnknownMember)
		}
		return
	}

	var args []any
	if len(env.ValueStream) > 0 {
		decoded, err := s.cfg.Codec.Deserialize(env.ValueStream, serverSubstituter{s.serverResolver, s})
		if err != nil {
			s.replyException(env, err)
			return
		}
		switch v := decoded.(type) {
		case []any:
			args = v
		case nil:
		default:
			args = []any{v}
		}
	}

	in := make([]reflect.Value, 1, m.Type.NumIn())
	in[0] = rv
	for i := 0; i < m.Type.NumIn()-1; i++ {
		want := m.Type.In(i + 1)
		var got any
		if i < len(args) {
			got = args[i]
		}
		av, err := alignArgument(want, got)
		if err != nil {
			s.replyException(env, &Error{Kind: ErrKindArityMismatch, Message: err.Error()})
			return
		}
		in = append(in, av)
	}

	out := m.Func.Call(in)
	result, callErr := splitMethodResult(out)
	if callErr != nil {
		s.log.Warn("method invocation failed", zap.String("dto", env.DtoGuid), zap.String("method", env.MemberName), zap.Error(callErr))
		s.replyException(env, &Error{Kind: ErrKindInvocationFailed, Message: callErr.Error()})
		return
	}
	s.replyResult(env, result)
}

func (s *Session) handleGet(env *Envelope) {
	target, ok := s.resolveTarget(env)
	if !ok {
		return
	}
	desc, rv := descriptorFor(target)
	index, ok := desc.properties[env.MemberName]
	if !ok {
		s.replyException(env, ErrUnknownProperty)
		return
	}
	fv := rv.Elem().FieldByIndex(index)
	s.replyResult(env, fv.Interface())
}

func (s *Session) handleSet(env *Envelope) {
	target, ok := s.resolveTarget(env)
	if !ok {
		return
	}
	desc, rv := descriptorFor(target)
	index, ok := desc.properties[env.MemberName]
	if !ok {
		s.replyException(env, ErrUnknownProperty)
		return
	}

	decoded, err := s.cfg.Codec.Deserialize(env.ValueStream, serverSubstituter{s.serverResolver, s})
	if err != nil {
		s.replyException(env, err)
		return
	}

	field := rv.Elem().FieldByIndex(index)
	av, err := alignArgument(field.Type(), decoded)
	if err != nil {
		s.replyException(env, &Error{Kind: ErrKindArityMismatch, Message: err.Error()})
		return
	}
	field.Set(av)

	if notifier, ok := target.(propertyNotifier); ok {
		notifier.NotifyPropertyChanged(env.MemberName, decoded)
	}
	s.send(replyTo(env, nil))
}

func (s *Session) handleEventAdd(env *Envelope) {
	target, ok := s.resolveTarget(env)
	if !ok {
		return
	}
	dtoId, _ := ParseIdentifier(env.DtoGuid)
	desc, rv := descriptorFor(target)
	index, ok := desc.events[env.MemberName]
	if !ok {
		s.replyException(env, ErrUnknownMember)
		return
	}

	s.mu.Lock()
	if s.eventSubs[dtoId] == nil {
		s.eventSubs[dtoId] = make(map[string]func())
	}
	already := s.eventSubs[dtoId][env.MemberName] != nil
	s.mu.Unlock()
	if already {
		s.send(replyTo(env, nil))
		return
	}

	ev := rv.Elem().FieldByIndex(index).Addr().Interface().(*Event)
	memberName := env.MemberName
	dtoGuid := env.DtoGuid
	// payload is captured at Raise time rather than read lazily at
	// serialization time, but Raise calls this closure synchronously and
	// nothing here yields before Serialize runs, so the value observed is
	// the same one a deferred read would see.
	unsub := ev.subscribe(func(payload any) {
		data, err := s.cfg.Codec.Serialize(payload, serverSubstituter{s.serverResolver, s})
		if err != nil {
			s.log.Warn("failed to serialize event payload", zap.Error(err), zap.String("event", memberName))
			return
		}
		s.send(NewEventNotification(dtoGuid, memberName, data))
	})

	s.mu.Lock()
	s.eventSubs[dtoId][env.MemberName] = unsub
	s.mu.Unlock()

	s.send(replyTo(env, nil))
}

func (s *Session) handleEventRemove(env *Envelope) {
	dtoId, err := ParseIdentifier(env.DtoGuid)
	if err != nil {
		s.replyException(env, err)
		return
	}
	s.mu.Lock()
	var unsub func()
	if byName, ok := s.eventSubs[dtoId]; ok {
		unsub = byName[env.MemberName]
		delete(byName, env.MemberName)
	}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.send(replyTo(env, nil))
}

func (s *Session) handleProxyFinalized(env *Envelope) {
	dtoId, err := ParseIdentifier(env.DtoGuid)
	if err != nil {
		return
	}
	s.mu.Lock()
	byName := s.eventSubs[dtoId]
	delete(s.eventSubs, dtoId)
	delete(s.exposed, dtoId)
	s.mu.Unlock()
	for _, unsub := range byName {
		unsub()
	}
	// Only this session's claim on dtoId is dropped here; the resolver
	// keeps the object alive if another session still has it exposed.
	s.serverResolver.removeReferenceById(dtoId, s)
}

func (s *Session) replyResult(env *Envelope, result any) {
	data, err := s.cfg.Codec.Serialize(result, serverSubstituter{s.serverResolver, s})
	if err != nil {
		s.replyException(env, err)
		return
	}
	s.send(replyTo(env, data))
}

func (s *Session) replyException(env *Envelope, err error) {
	s.send(exceptionTo(env, err))
}

func splitMethodResult(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		v := out[0]
		if isErrorType(v.Type()) {
			if v.IsNil() {
				return nil, nil
			}
			return nil, v.Interface().(error)
		}
		return v.Interface(), nil
	default:
		last := out[len(out)-1]
		if isErrorType(last.Type()) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool { return t.Implements(errorType) }

// -- codec.Substituter adapters --

type serverSubstituter struct {
	r *ServerResolver
	s *Session
}

func (ss serverSubstituter) ToWire(obj any) (string, bool) {
	dto, ok := obj.(Dto)
	if !ok {
		return "", false
	}
	return ss.r.GetOrAssignReference(dto, ss.s).String(), true
}

func (ss serverSubstituter) FromWire(id string) any {
	pid, err := ParseIdentifier(id)
	if err != nil {
		return nil
	}
	if v := ss.r.ResolveReference(pid); v != nil {
		return v
	}
	return nil
}

type clientSubstituter struct {
	r *ClientResolver
	s *Session
}

func (c clientSubstituter) ToWire(obj any) (string, bool) {
	id, ok := c.r.GetReference(obj)
	if !ok {
		return "", false
	}
	return id.String(), true
}

func (c clientSubstituter) FromWire(id string) any {
	pid, err := ParseIdentifier(id)
	if err != nil || pid.IsEmpty() {
		return nil
	}
	return c.r.resolveForDecode(pid, c.s)
}

var _ codec.Substituter = serverSubstituter{}
var _ codec.Substituter = clientSubstituter{}
