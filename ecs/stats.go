package ecs

// StorageStats is a snapshot of storage occupancy.
type StorageStats struct {
	ArchetypeCount     int
	TotalEntityCount   int
	EntitySlots        int
	SingletonCount     int
	Tick               uint64
	ArchetypeBreakdown []ArchetypeStats
	SingletonTypes     []string
}

// ArchetypeStats describes one archetype.
type ArchetypeStats struct {
	ID             ArchetypeId
	Mask           Mask
	ComponentTypes []string
	EntityCount    int
}

// CollectStats returns a snapshot of the storage. Archetypes are listed by id,
// including the empty archetype.
func (s *Storage) CollectStats() StorageStats {
	stats := StorageStats{
		ArchetypeCount:     len(s.archetypes),
		TotalEntityCount:   s.entities.Len(),
		EntitySlots:        s.entities.Cap(),
		Tick:               s.Tick(),
		ArchetypeBreakdown: make([]ArchetypeStats, 0, len(s.archetypes)),
	}

	for _, archetype := range s.archetypes {
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:             archetype.id,
			Mask:           archetype.mask,
			ComponentTypes: s.registry.Describe(archetype.mask),
			EntityCount:    archetype.Len(),
		})
	}

	for _, t := range s.Singletons() {
		stats.SingletonTypes = append(stats.SingletonTypes, t.String())
	}
	stats.SingletonCount = len(stats.SingletonTypes)
	return stats
}
