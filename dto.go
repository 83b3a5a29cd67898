package cmrpc

import "sync"

// Dto is the capability that makes an object participate in a resolver:
// it has a stable identifier assigned the first time it is serialized.
// Both server objects and client proxies implement it.
type Dto interface {
	Id() Identifier
	setId(Identifier)
}

// PropertyChangedArgs describes a single property mutation, delivered as
// the payload of a PropertyChanged EventNotification.
type PropertyChangedArgs struct {
	PropertyName string `json:"propertyName"`
	Value        any    `json:"value"`
}

// propertyNotifier is implemented by anything that raises PropertyChanged
// through its own Event field, letting the Set dispatch path forward a
// property mutation without knowing the DTO's concrete type.
type propertyNotifier interface {
	NotifyPropertyChanged(name string, value any)
}

// ServerObjectBase is embedded by application DTOs to gain identity and a
// PropertyChanged event. It owns no application state; the registry
// discovers PropertyChanged the same way it discovers any other Event
// field, so a client subscribes to it with the ordinary EventAdd path.
type ServerObjectBase struct {
	mu sync.Mutex
	id Identifier

	PropertyChanged Event
}

var _ Dto = (*ServerObjectBase)(nil)
var _ propertyNotifier = (*ServerObjectBase)(nil)

// Id returns the object's identifier, or the empty Identifier if it has
// never been serialized.
func (b *ServerObjectBase) Id() Identifier {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

func (b *ServerObjectBase) setId(id Identifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

func (b *ServerObjectBase) hasId() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.id.IsEmpty()
}

// NotifyPropertyChanged is called by an embedding DTO's setter methods
// whenever a property mutates, raising PropertyChanged for whichever
// sessions currently subscribe to it.
func (b *ServerObjectBase) NotifyPropertyChanged(propertyName string, value any) {
	b.PropertyChanged.Raise(PropertyChangedArgs{PropertyName: propertyName, Value: value})
}
