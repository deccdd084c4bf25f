package lexicon

// Default builds the lexicon shipped with the navigator.
func Default() (*Lexicon, error) {
	return New(DefaultData())
}

// DefaultData returns a fresh copy of the built-in lexicon data.
func DefaultData() Data {
	return Data{
		Synonyms:     defaultSynonyms(),
		Patterns:     defaultPatterns(),
		Vocabulary:   defaultVocabulary(),
		Misspellings: defaultMisspellings(),
		Affinity:     defaultAffinity(),
		KindAffinity: defaultKindAffinity(),
		StopWords:    defaultStopWords(),
	}
}

func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"ac":        {"armor class"},
		"hp":        {"hit points"},
		"dc":        {"difficulty class"},
		"aoe":       {"area of effect"},
		"aoo":       {"opportunity attack"},
		"npc":       {"non-player character"},
		"pc":        {"player character"},
		"xp":        {"experience points"},
		"cr":        {"challenge rating"},
		"dm":        {"dungeon master"},
		"gm":        {"dungeon master"},
		"gp":        {"gold pieces"},
		"lvl":       {"level"},
		"hd":        {"hit dice"},
		"mi":        {"magic item"},
		"st":        {"saving throw"},
		"save":      {"saving throw"},
		"nat20":     {"critical hit"},
		"crit":      {"critical hit"},
		"adv":       {"advantage"},
		"disadv":    {"disadvantage"},
		"mage":      {"wizard"},
		"sorc":      {"sorcerer"},
		"barb":      {"barbarian"},
		"pally":     {"paladin"},
		"lock":      {"warlock"},
		"thief":     {"rogue"},
		"priest":    {"cleric"},
		"healer":    {"cleric", "druid"},
		"heal":      {"healing", "cure wounds"},
		"armour":    {"armor"},
		"mob":       {"monster"},
		"beast":     {"monster", "creature"},
		"cantrip":   {"spell"},
		"potion":    {"magic item"},
		"blade":     {"sword"},
		"bow":       {"longbow", "shortbow"},
	}
}

func defaultPatterns() []PatternSpec {
	return []PatternSpec{
		{Kind: string(KindDice), Pattern: `\d*d\d+(?:\s*[+-]\s*\d+)?`},
		{Kind: string(KindChallengeRating), Pattern: `cr\s*\d+(?:/\d+)?`},
		{Kind: string(KindMeasure), Pattern: `\d+(?:\.\d+)?(?:\s*|-)(?:ft|feet|foot|gp|sp|cp|ep|pp|lbs?|pounds?|miles?|mi|hp|xp|minutes?|hours?|rounds?)`},
		{Kind: string(KindLevel), Pattern: `\d+(?:st|nd|rd|th)(?:[\s-]level)?`},
		{Kind: string(KindAbilityScore), Pattern: `(?:str|dex|con|int|wis|cha)(?:\s*[+-]\s*\d+)?`},
		{Kind: string(KindRulebook), Pattern: `phb|dmg|mm|xgte|tcoe|scag|vgtm|mtof|srd`},
	}
}

func defaultVocabulary() map[Category][]string {
	return map[Category][]string{
		CategorySpells: {
			"fireball", "lightning bolt", "magic missile", "cure wounds", "healing word",
			"shield", "counterspell", "eldritch blast", "cantrip", "ritual", "concentration",
			"teleport", "teleportation", "invisibility", "polymorph", "wish", "haste",
			"misty step", "sleep", "charm person", "banishment", "revivify", "resurrection",
			"identify", "detect", "thunderwave", "guidance", "prestidigitation", "thaumaturgy",
			"necromancy", "evocation", "abjuration", "conjuration", "divination", "enchantment",
			"illusion", "transmutation", "spell", "spells", "slot", "spellcasting", "somatic",
			"verbal", "material", "damage", "healing",
		},
		CategoryMonsters: {
			"dragon", "goblin", "orc", "beholder", "lich", "vampire", "zombie", "skeleton",
			"kobold", "troll", "ogre", "giant", "demon", "devil", "balor", "owlbear", "mimic",
			"gelatinous cube", "basilisk", "medusa", "hydra", "kraken", "tarrasque", "werewolf",
			"ghoul", "wraith", "elemental", "aberration", "undead", "fiend", "monstrosity",
			"creature", "monster", "legendary", "lair", "breath",
		},
		CategoryEquipment: {
			"longsword", "shortsword", "greatsword", "sword", "dagger", "rapier", "scimitar",
			"greataxe", "handaxe", "crossbow", "longbow", "shortbow", "javelin", "spear",
			"halberd", "glaive", "mace", "warhammer", "quarterstaff", "armor", "shield",
			"chain mail", "plate", "leather", "studded", "breastplate", "backpack", "rope",
			"torch", "rations", "weapon", "weapons", "equipment", "finesse", "versatile",
			"ammunition",
		},
		CategoryClasses: {
			"barbarian", "bard", "cleric", "druid", "fighter", "monk", "paladin", "ranger",
			"rogue", "sorcerer", "warlock", "wizard", "artificer", "subclass", "multiclass",
			"proficiency",
		},
		CategoryRaces: {
			"dwarf", "elf", "halfling", "human", "dragonborn", "gnome", "half-elf", "half-orc",
			"tiefling", "goliath", "aasimar", "darkvision", "race", "ancestry", "subrace",
		},
		CategoryMagicItems: {
			"potion", "ring", "wand", "staff", "rod", "amulet", "cloak", "boots", "gauntlets",
			"bag of holding", "vorpal", "artifact", "attunement", "scroll", "belt", "magic",
		},
		CategoryFeatures: {
			"action surge", "sneak attack", "rage", "wild shape", "channel divinity",
			"extra attack", "lay on hands", "divine smite", "inspiration", "feature", "feat",
			"feats", "ability", "evasion", "uncanny dodge", "cunning action", "reckless",
		},
	}
}

func defaultMisspellings() map[string]string {
	return map[string]string{
		"wizzard":   "wizard",
		"sorceror":  "sorcerer",
		"sorcerror": "sorcerer",
		"paladen":   "paladin",
		"barbarion": "barbarian",
		"warlok":    "warlock",
		"cleirc":    "cleric",
		"rouge":     "rogue",
		"magik":     "magic",
		"beholdr":   "beholder",
		"dragn":     "dragon",
	}
}

func defaultAffinity() map[string]map[Category]float64 {
	return map[string]map[Category]float64{
		"armor class":        {CategoryMonsters: 1, CategoryEquipment: 1},
		"hit points":         {CategoryMonsters: 1.5, CategoryClasses: 0.5},
		"challenge rating":   {CategoryMonsters: 2},
		"spell slot":         {CategorySpells: 2, CategoryClasses: 0.5},
		"spell":              {CategorySpells: 1},
		"cast":               {CategorySpells: 1, CategoryClasses: 0.5},
		"casting":            {CategorySpells: 1, CategoryClasses: 0.5},
		"school":             {CategorySpells: 0.5},
		"damage":             {CategoryEquipment: 1, CategoryMonsters: 0.5},
		"breath weapon":      {CategoryMonsters: 1.5, CategoryRaces: 1},
		"weapon":             {CategoryEquipment: 1},
		"armor":              {CategoryEquipment: 1},
		"cost":               {CategoryEquipment: 1.5, CategoryMagicItems: 0.5},
		"price":              {CategoryEquipment: 1.5, CategoryMagicItems: 0.5},
		"gold pieces":        {CategoryEquipment: 1.5, CategoryMagicItems: 0.5},
		"weight":             {CategoryEquipment: 1},
		"class":              {CategoryClasses: 1.5},
		"level":              {CategoryClasses: 1, CategorySpells: 0.5},
		"hit dice":           {CategoryClasses: 1.5},
		"speed":              {CategoryRaces: 1, CategoryMonsters: 0.5},
		"magic item":         {CategoryMagicItems: 2.5},
		"difficulty class":   {CategorySpells: 1, CategoryMonsters: 0.5, CategoryFeatures: 0.5},
		"saving throw":       {CategorySpells: 1, CategoryMonsters: 0.5},
		"area of effect":     {CategorySpells: 1.5},
		"opportunity attack": {CategoryFeatures: 1, CategoryMonsters: 0.5},
		"experience points":  {CategoryMonsters: 1},
		"critical hit":       {CategoryFeatures: 0.5, CategoryEquipment: 0.5},
		"player character":   {CategoryClasses: 1, CategoryRaces: 1},
	}
}

func defaultKindAffinity() map[string]map[Category]float64 {
	return map[string]map[Category]float64{
		string(KindDice):            {CategorySpells: 1, CategoryEquipment: 0.5, CategoryMonsters: 0.5},
		string(KindChallengeRating): {CategoryMonsters: 2},
		string(KindMeasure):         {CategorySpells: 0.5, CategoryEquipment: 0.5},
		string(KindLevel):           {CategorySpells: 1, CategoryClasses: 1},
		string(KindAbilityScore):    {CategoryClasses: 1, CategoryFeatures: 0.5},
	}
}

func defaultStopWords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "he",
		"in", "is", "it", "its", "of", "on", "or", "that", "the", "to", "was", "were",
		"will", "with", "this", "but", "they", "have", "had", "what", "when", "where",
		"who", "which", "their", "if", "each", "do", "not", "no", "so", "can",
		"how", "much", "many", "does", "did", "tell", "me", "about", "there", "some",
		"any", "get", "give", "show", "find", "my", "your", "you", "we", "our", "i",
		"should", "would", "could", "work", "works", "does", "know", "need", "want",
		"list", "explain", "describe", "than", "then", "into", "also", "best",
	}
}
