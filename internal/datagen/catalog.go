package datagen

// categorySpec describes one product category of the generated catalog.
type categorySpec struct {
	name          string
	subcategories []string
	brands        []string
	nouns         []string
	minPrice      float64
	maxPrice      float64
	// weight is the relative share of basket lines.
	weight        int
}

var catalog = []categorySpec{
	{
		name:          "FUEL",
		subcategories: []string{"UNLEADED", "PREMIUM", "DIESEL"},
		brands:        []string{"Shell", "Chevron", "Sinclair", "Maverik"},
		nouns:         []string{"Gallon"},
		minPrice:      25,
		maxPrice:      70,
		weight:        14,
	},
	{
		name:          "PACKAGED BEVERAGES",
		subcategories: []string{"ENERGY DRINKS", "CARBONATED SOFT DRINKS", "BOTTLED WATER", "SPORTS DRINKS", "READY TO DRINK COFFEE"},
		brands:        []string{"Red Bull", "Monster", "Coca-Cola", "Pepsi", "Gatorade", "Dasani", "Starbucks", "Celsius", "Bang", "Mountain Dew", "Dr Pepper", "Body Armor"},
		nouns:         []string{"12oz Can", "16oz Can", "20oz Bottle", "1L Bottle", "4 Pack"},
		minPrice:      1,
		maxPrice:      6,
		weight:        22,
	},
	{
		name:          "SALTY SNACKS",
		subcategories: []string{"POTATO CHIPS", "TORTILLA CHIPS", "JERKY", "NUTS"},
		brands:        []string{"Lays", "Doritos", "Cheetos", "Jack Links", "Planters", "Takis"},
		nouns:         []string{"Chips", "Bag", "Pouch"},
		minPrice:      1,
		maxPrice:      8,
		weight:        14,
	},
	{
		name:          "CANDY",
		subcategories: []string{"CHOCOLATE", "NON CHOCOLATE", "GUM"},
		brands:        []string{"Hershey", "Mars", "Skittles", "Reeses", "Trident", "Haribo"},
		nouns:         []string{"Bar", "King Size", "Pack"},
		minPrice:      1,
		maxPrice:      4,
		weight:        12,
	},
	{
		name:          "TOBACCO",
		subcategories: []string{"CIGARETTES", "SMOKELESS", "VAPOR"},
		brands:        []string{"Marlboro", "Camel", "Grizzly", "Juul"},
		nouns:         []string{"Pack", "Can", "Pod"},
		minPrice:      6,
		maxPrice:      12,
		weight:        8,
	},
	{
		name:          "BEER",
		subcategories: []string{"DOMESTIC", "IMPORT", "CRAFT"},
		brands:        []string{"Budweiser", "Coors", "Modelo", "Michelob", "Corona"},
		nouns:         []string{"6 Pack", "12 Pack", "24oz Can"},
		minPrice:      3,
		maxPrice:      22,
		weight:        7,
	},
	{
		name:          "DAIRY",
		subcategories: []string{"MILK", "CHEESE", "YOGURT"},
		brands:        []string{"Darigold", "Tillamook", "Chobani"},
		nouns:         []string{"Gallon", "Quart", "Cup"},
		minPrice:      1,
		maxPrice:      6,
		weight:        5,
	},
	{
		name:          "FOODSERVICE",
		subcategories: []string{"HOT FOOD", "FOUNTAIN", "HOT DISPENSED BEVERAGES"},
		brands:        []string{"House", "Roller Grill", "Fresh Brew"},
		nouns:         []string{"Hot Dog", "Burrito", "Pizza Slice", "Fountain Drink", "Coffee"},
		minPrice:      1,
		maxPrice:      7,
		weight:        10,
	},
	{
		name:          "GENERAL MERCHANDISE",
		subcategories: []string{"AUTOMOTIVE", "HEALTH AND BEAUTY", "ELECTRONICS"},
		brands:        []string{"Prestone", "Advil", "Energizer", "Chapstick"},
		nouns:         []string{"Bottle", "Pack", "Each"},
		minPrice:      2,
		maxPrice:      15,
		weight:        4,
	},
}

// region is a generated store territory.
type region struct {
	state          string
	cities         []string
	minLat, maxLat float64
	minLon, maxLon float64
	weight         int
}

var regions = []region{
	{state: "ID", cities: []string{"Boise", "Meridian", "Nampa", "Idaho Falls", "Pocatello", "Twin Falls", "Coeur d'Alene"},
		minLat: 42.1, maxLat: 48.9, minLon: -116.9, maxLon: -111.1, weight: 6},
	{state: "UT", cities: []string{"Salt Lake City", "Ogden", "Provo", "St. George", "Logan"},
		minLat: 37.1, maxLat: 41.9, minLon: -113.9, maxLon: -109.1, weight: 3},
	{state: "WA", cities: []string{"Spokane", "Yakima", "Kennewick", "Walla Walla"},
		minLat: 45.7, maxLat: 48.9, minLon: -120.5, maxLon: -117.1, weight: 2},
	{state: "OR", cities: []string{"Bend", "Ontario", "Pendleton", "Medford"},
		minLat: 42.1, maxLat: 45.8, minLon: -122.9, maxLon: -117.1, weight: 1},
	{state: "NV", cities: []string{"Reno", "Elko", "Winnemucca"},
		minLat: 39.1, maxLat: 41.9, minLon: -119.9, maxLon: -114.1, weight: 1},
}

// Payment types written to transaction sets. The empty string becomes a
// null payment type.
var (
	paymentTypes   = []string{"CASH", "CREDIT", "DEBIT", "EBT", ""}
	paymentWeights = []int{38, 40, 17, 3, 2}
)

// Hour-of-day weights for checkout times, 05:00 through 23:00.
var (
	checkoutHours       = []int{5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}
	checkoutHourWeights = []int{2, 5, 8, 8, 6, 5, 6, 8, 7, 6, 7, 8, 9, 8, 6, 5, 4, 3, 2}
)

func categoryWeights() []int {
	w := make([]int, len(catalog))
	for i, c := range catalog {
		w[i] = c.weight
	}
	return w
}

func regionWeights() []int {
	w := make([]int, len(regions))
	for i, r := range regions {
		w[i] = r.weight
	}
	return w
}
