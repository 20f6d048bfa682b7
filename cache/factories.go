package cache

// FactoryFor returns the built-in local cache factory for policy.
func FactoryFor(policy string, config LocalCacheConfig) (LocalCacheFactory, error) {
	switch policy {
	case PolicyLFU, "":
		return NewLFUCacheFactory(config), nil
	case PolicyLRU:
		return NewLRUCacheFactory(config.MaxSize), nil
	default:
		return nil, ErrInvalidConfig
	}
}
