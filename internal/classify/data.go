package classify

// kentuckyCounties lists all 120 Kentucky counties.
var kentuckyCounties = []string{
	"Adair", "Allen", "Anderson", "Ballard", "Barren", "Bath", "Bell",
	"Boone", "Bourbon", "Boyd", "Boyle", "Bracken", "Breathitt",
	"Breckinridge", "Bullitt", "Butler", "Caldwell", "Calloway",
	"Campbell", "Carlisle", "Carroll", "Carter", "Casey", "Christian",
	"Clark", "Clay", "Clinton", "Crittenden", "Cumberland", "Daviess",
	"Edmonson", "Elliott", "Estill", "Fayette", "Fleming", "Floyd",
	"Franklin", "Fulton", "Gallatin", "Garrard", "Grant", "Graves",
	"Grayson", "Green", "Greenup", "Hancock", "Hardin", "Harlan",
	"Harrison", "Hart", "Henderson", "Henry", "Hickman", "Hopkins",
	"Jackson", "Jefferson", "Jessamine", "Johnson", "Kenton", "Knott",
	"Knox", "LaRue", "Laurel", "Lawrence", "Lee", "Leslie", "Letcher",
	"Lewis", "Lincoln", "Livingston", "Logan", "Lyon", "Madison",
	"Magoffin", "Marion", "Marshall", "Martin", "Mason", "McCracken",
	"McCreary", "McLean", "Meade", "Menifee", "Mercer", "Metcalfe",
	"Monroe", "Montgomery", "Morgan", "Muhlenberg", "Nelson", "Nicholas",
	"Ohio", "Oldham", "Owen", "Owsley", "Pendleton", "Perry", "Pike",
	"Powell", "Pulaski", "Robertson", "Rockcastle", "Rowan", "Russell",
	"Scott", "Shelby", "Simpson", "Spencer", "Taylor", "Todd", "Trigg",
	"Trimble", "Union", "Warren", "Washington", "Wayne", "Webster",
	"Whitley", "Wolfe", "Woodford",
}

// cityCounties maps well-known Kentucky cities to their counties. City
// matches only contribute when the article carries a KY signal.
var cityCounties = map[string]string{
	"Louisville":     "Jefferson",
	"Lexington":      "Fayette",
	"Bowling Green":  "Warren",
	"Owensboro":      "Daviess",
	"Covington":      "Kenton",
	"Richmond":       "Madison",
	"Georgetown":     "Scott",
	"Florence":       "Boone",
	"Elizabethtown":  "Hardin",
	"Nicholasville":  "Jessamine",
	"Henderson":      "Henderson",
	"Frankfort":      "Franklin",
	"Hopkinsville":   "Christian",
	"Paducah":        "McCracken",
	"Pikeville":      "Pike",
	"Ashland":        "Boyd",
	"Madisonville":   "Hopkins",
	"Winchester":     "Clark",
	"Erlanger":       "Kenton",
	"Murray":         "Calloway",
	"Somerset":       "Pulaski",
	"Danville":       "Boyle",
	"London":         "Laurel",
	"Shelbyville":    "Shelby",
	"Berea":          "Madison",
	"Glasgow":        "Barren",
	"Bardstown":      "Nelson",
	"Shepherdsville": "Bullitt",
	"Campbellsville": "Taylor",
	"Lawrenceburg":   "Anderson",
	"Paris":          "Bourbon",
	"Versailles":     "Woodford",
	"Mount Sterling": "Montgomery",
	"Maysville":      "Mason",
	"Morehead":       "Rowan",
	"Hazard":         "Perry",
	"Middlesboro":    "Bell",
	"Corbin":         "Whitley",
	"Harrodsburg":    "Mercer",
	"Mayfield":       "Graves",
	"Franklin":       "Simpson",
	"Princeton":      "Caldwell",
	"Leitchfield":    "Grayson",
	"Cynthiana":      "Harrison",
}

// ambiguousCities share their name with larger cities elsewhere and need
// a corroborating KY signal before they count as Kentucky references.
var ambiguousCities = map[string]bool{
	"Lexington":  true,
	"Louisville": true,
	"Georgetown": true,
	"Franklin":   true,
	"Winchester": true,
}

// usStates is the full-name state list scanned for otherStates tags.
var usStates = []string{
	"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
	"Connecticut", "Delaware", "Florida", "Georgia", "Hawaii", "Idaho",
	"Illinois", "Indiana", "Iowa", "Kansas", "Kentucky", "Louisiana",
	"Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
	"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada",
	"New Hampshire", "New Jersey", "New Mexico", "New York",
	"North Carolina", "North Dakota", "Ohio", "Oklahoma", "Oregon",
	"Pennsylvania", "Rhode Island", "South Carolina", "South Dakota",
	"Tennessee", "Texas", "Utah", "Vermont", "Virginia", "Washington",
	"West Virginia", "Wisconsin", "Wyoming",
}

var stateAbbrevs = map[string]string{
	"Alabama": "AL", "Alaska": "AK", "Arizona": "AZ", "Arkansas": "AR",
	"California": "CA", "Colorado": "CO", "Connecticut": "CT",
	"Delaware": "DE", "Florida": "FL", "Georgia": "GA", "Hawaii": "HI",
	"Idaho": "ID", "Illinois": "IL", "Indiana": "IN", "Iowa": "IA",
	"Kansas": "KS", "Kentucky": "KY", "Louisiana": "LA", "Maine": "ME",
	"Maryland": "MD", "Massachusetts": "MA", "Michigan": "MI",
	"Minnesota": "MN", "Mississippi": "MS", "Missouri": "MO",
	"Montana": "MT", "Nebraska": "NE", "Nevada": "NV",
	"New Hampshire": "NH", "New Jersey": "NJ", "New Mexico": "NM",
	"New York": "NY", "North Carolina": "NC", "North Dakota": "ND",
	"Ohio": "OH", "Oklahoma": "OK", "Oregon": "OR", "Pennsylvania": "PA",
	"Rhode Island": "RI", "South Carolina": "SC", "South Dakota": "SD",
	"Tennessee": "TN", "Texas": "TX", "Utah": "UT", "Vermont": "VT",
	"Virginia": "VA", "Washington": "WA", "West Virginia": "WV",
	"Wisconsin": "WI", "Wyoming": "WY",
}
