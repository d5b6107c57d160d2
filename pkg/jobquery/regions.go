package jobquery

import "strings"

// zipRegions maps the first two digits of a US ZIP code to a coarse
// "State City" search term. Prefixes not listed resolve to no region.
var zipRegions = map[string]string{
	"01": "Massachusetts Springfield",
	"02": "Massachusetts Boston",
	"03": "New Hampshire Manchester",
	"04": "Maine Portland",
	"05": "Vermont Burlington",
	"06": "Connecticut Hartford",
	"07": "New Jersey Newark",
	"08": "New Jersey Trenton",
	"10": "New York New York City",
	"11": "New York Long Island",
	"12": "New York Albany",
	"14": "New York Buffalo",
	"15": "Pennsylvania Pittsburgh",
	"19": "Pennsylvania Philadelphia",
	"20": "District of Columbia Washington",
	"21": "Maryland Baltimore",
	"22": "Virginia Arlington",
	"23": "Virginia Richmond",
	"27": "North Carolina Raleigh",
	"28": "North Carolina Charlotte",
	"29": "South Carolina Columbia",
	"30": "Georgia Atlanta",
	"31": "Georgia Savannah",
	"32": "Florida Orlando",
	"33": "Florida Miami",
	"35": "Alabama Birmingham",
	"37": "Tennessee Nashville",
	"38": "Tennessee Memphis",
	"40": "Kentucky Louisville",
	"43": "Ohio Columbus",
	"44": "Ohio Cleveland",
	"45": "Ohio Cincinnati",
	"46": "Indiana Indianapolis",
	"48": "Michigan Detroit",
	"53": "Wisconsin Milwaukee",
	"55": "Minnesota Minneapolis",
	"60": "Illinois Chicago",
	"63": "Missouri St. Louis",
	"64": "Missouri Kansas City",
	"68": "Nebraska Omaha",
	"70": "Louisiana New Orleans",
	"73": "Oklahoma Oklahoma City",
	"75": "Texas Dallas",
	"76": "Texas Fort Worth",
	"77": "Texas Houston",
	"78": "Texas Austin",
	"80": "Colorado Denver",
	"84": "Utah Salt Lake City",
	"85": "Arizona Phoenix",
	"87": "New Mexico Albuquerque",
	"89": "Nevada Las Vegas",
	"90": "California Los Angeles",
	"92": "California San Diego",
	"94": "California San Francisco",
	"95": "California San Jose",
	"97": "Oregon Portland",
	"98": "Washington Seattle",
}

// RegionForZip resolves a ZIP code to a region label by its two-digit prefix.
// Malformed or unknown ZIPs return ok=false.
func RegionForZip(zip string) (string, bool) {
	zip = strings.TrimSpace(zip)
	if len(zip) < 2 || !isDigit(zip[0]) || !isDigit(zip[1]) {
		return "", false
	}
	region, ok := zipRegions[zip[:2]]
	return region, ok
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
