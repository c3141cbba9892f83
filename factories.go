package origodb

import "reflect"

// Load opens an existing engine at config.Location. newModel must return a
// zero-valued instance of the Model's concrete type; it is used both to
// give Storage something to decode the snapshot into and as the model
// itself when there turns out to be nothing to decode. Load fails with
// ErrStorageAbsent if the
// location holds no snapshot.
func Load(config Config, newModel func() Model) (*Engine, error) {
	probe := config.withDefaults()
	store, err := probe.StorageFactory(probe.Location, probe.SerializerFactory())
	if err != nil {
		return nil, err
	}
	exists, err := store.Exists()
	closeErr := store.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if !exists {
		return nil, ErrStorageAbsent
	}

	// The probe's Storage is closed before open builds its own, so a
	// directory-locking backend like BadgerStorage never sees two opens on
	// the same location overlap.
	return open(config, newModel)
}

// Create initializes a brand-new engine at config.Location with
// initialModel as its starting state, then opens it. Create fails with
// ErrStorageExists if the location is already populated.
func Create(config Config, initialModel Model) (*Engine, error) {
	probe := config.withDefaults()
	ser := probe.SerializerFactory()
	store, err := probe.StorageFactory(probe.Location, ser)
	if err != nil {
		return nil, err
	}

	canCreate, err := store.CanCreate()
	if err != nil {
		store.Close()
		return nil, err
	}
	if !canCreate {
		store.Close()
		return nil, ErrStorageExists
	}
	if err := store.Create(initialModel); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Close(); err != nil {
		return nil, err
	}

	newModel := modelTemplateFunc(initialModel)
	return open(config, newModel)
}

// LoadOrCreate opens the engine at config.Location if storage already
// exists there, or creates it from newModel() otherwise.
func LoadOrCreate(config Config, newModel func() Model) (*Engine, error) {
	probe := config.withDefaults()
	store, err := probe.StorageFactory(probe.Location, probe.SerializerFactory())
	if err != nil {
		return nil, err
	}

	exists, err := store.Exists()
	closeErr := store.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	if exists {
		return Load(config, newModel)
	}
	return Create(config, newModel())
}

// modelTemplateFunc returns a constructor producing fresh zero-valued
// instances of model's concrete type, used internally once an initial
// model value is only available as a one-off (Create's parameter).
func modelTemplateFunc(model Model) func() Model {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Pointer {
		elem := t.Elem()
		return func() Model { return reflect.New(elem).Interface() }
	}
	return func() Model { return reflect.New(t).Elem().Interface() }
}
