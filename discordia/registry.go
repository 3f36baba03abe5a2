package discordia

// EntityRegistry layers read-only convenience queries over a StateStore.
//
// The by-name lookups fail with EntityNotFoundError rather than returning
// an absent flag: callers using the registry expect the entity to exist
// (the reconciler treats the error as "needs creating").
type EntityRegistry struct {
	store StateStore
}

func NewEntityRegistry(store StateStore) *EntityRegistry {
	return &EntityRegistry{store: store}
}

// CategoryByName finds a category by name within a server.
func (r *EntityRegistry) CategoryByName(name string, serverID string) (
	Category,
	error,
) {
	for _, category := range r.store.Categories() {
		if category.Name == name && category.ServerID == serverID {
			return category, nil
		}
	}
	return Category{}, EntityNotFoundError{
		Kind:     "category",
		Name:     name,
		ServerID: serverID,
	}
}

// ChannelByName finds a channel by name within a server.
func (r *EntityRegistry) ChannelByName(name string, serverID string) (
	Channel,
	error,
) {
	for _, channel := range r.store.Channels() {
		if channel.Name == name && channel.ServerID == serverID {
			return channel, nil
		}
	}
	return Channel{}, EntityNotFoundError{
		Kind:     "channel",
		Name:     name,
		ServerID: serverID,
	}
}

// ChannelsInCategory returns all channels whose CategoryID matches the
// given category. An empty result is not an error.
func (r *EntityRegistry) ChannelsInCategory(categoryID string) []Channel {
	var channels []Channel
	for _, channel := range r.store.Channels() {
		if channel.CategoryID == categoryID {
			channels = append(channels, channel)
		}
	}
	return channels
}
