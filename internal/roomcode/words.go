package roomcode

var creatures = []string{
	"otter", "heron", "lynx", "gecko", "marmot", "puffin", "badger", "ibis", "tapir", "wombat",
	"falcon", "newt", "bison", "quokka", "magpie", "lemur", "osprey", "vole", "walrus", "yak",
	"crane", "dingo", "ermine", "gazelle", "kiwi", "manatee", "ocelot", "pika", "stoat", "wren",
}

var foods = []string{
	"mochi", "tamale", "pretzel", "crepe", "bagel", "churro", "scone", "bao", "pakora", "arepa",
	"empanada", "gyoza", "latke", "strudel", "tofu", "nacho", "brioche", "halva", "kimchi", "lassi",
	"focaccia", "baklava", "pho", "udon", "tortilla", "granola", "praline", "sorbet", "truffle", "waffle",
}

var places = []string{
	"harbor", "canyon", "meadow", "glacier", "lagoon", "summit", "orchard", "prairie", "delta", "fjord",
	"atoll", "bayou", "grove", "mesa", "tundra", "island", "valley", "dune", "crater", "reef",
	"marsh", "ridge", "cove", "steppe", "oasis", "forest", "geyser", "inlet", "plateau", "quarry",
}

var moods = []string{
	"brave", "calm", "eager", "gentle", "jolly", "keen", "lively", "merry", "nimble", "proud",
	"quiet", "witty", "zesty", "bold", "cheery", "dapper", "fuzzy", "giddy", "humble", "plucky",
	"sunny", "spry", "snug", "tidy", "vivid", "wise", "breezy", "cosmic", "frosty", "mellow",
}

var colors = []string{
	"amber", "azure", "cobalt", "coral", "crimson", "indigo", "ivory", "jade", "lilac", "magenta",
	"ochre", "olive", "scarlet", "sepia", "teal", "umber", "violet", "saffron", "russet", "cerise",
}
