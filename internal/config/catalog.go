package config

import "decharge/gateway/internal/model"

// DefaultCatalog is the marketplace the gateway seeds when no file overrides it.
func DefaultCatalog() []model.MarketplaceItem {
	return []model.MarketplaceItem{
		{
			ID:             "energy-boost",
			Title:          "Ultra-fast Charge Booster",
			Category:       model.CategoryEnergy,
			Description:    "Deploy 15-minute boost for any partner station during peak hours.",
			PointsCost:     480,
			CashPriceUsd:   65,
			SavingsPercent: 32,
			DeliveryType:   model.DeliveryDigital,
			Inventory:      250,
		},
		{
			ID:             "ride-credits",
			Title:          "Heliox Mobility Ride Pack",
			Category:       model.CategoryMobility,
			Description:    "5 ride credits across participating EV ride-hailing partners.",
			PointsCost:     320,
			CashPriceUsd:   48,
			SavingsPercent: 40,
			DeliveryType:   model.DeliveryOnChain,
			Inventory:      400,
		},
		{
			ID:             "solar-upgrade",
			Title:          "Solar Canopy Upgrade",
			Category:       model.CategoryEnergy,
			Description:    "Unlock solar canopy upgrade for your favorite station in the metaverse world.",
			PointsCost:     1200,
			CashPriceUsd:   210,
			SavingsPercent: 25,
			DeliveryType:   model.DeliveryPhysical,
			Inventory:      25,
		},
		{
			ID:             "vip-pass",
			Title:          "DeCharge VIP Pass",
			Category:       model.CategoryPerks,
			Description:    "Priority queuing, merch drops, and beta access to new experiences.",
			PointsCost:     950,
			CashPriceUsd:   130,
			SavingsPercent: 41,
			DeliveryType:   model.DeliveryDigital,
			Inventory:      150,
		},
	}
}
