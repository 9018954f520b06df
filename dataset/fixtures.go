package dataset

import "time"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func region(s string) *string { return &s }

func orders(customerID string, rows ...Order) []Order {
	for i := range rows {
		rows[i].CustomerID = customerID
	}
	return rows
}

// fixtureCustomers builds the customer list fresh on every call so callers can
// never share (and mutate) the same slices.
func fixtureCustomers() []Customer {
	return []Customer{
		{
			ID: "ALFKI", CompanyName: "Alfreds Futterkiste", City: "Berlin", Country: "Germany",
			PostalCode: "12209", Phone: "030-0074321",
			Orders: orders("ALFKI",
				Order{ID: 10643, Total: 814.50, OrderDate: date(1997, time.August, 25)},
				Order{ID: 10692, Total: 878.00, OrderDate: date(1997, time.October, 3)},
				Order{ID: 10702, Total: 330.00, OrderDate: date(1997, time.October, 13)},
				Order{ID: 10835, Total: 845.80, OrderDate: date(1998, time.January, 15)},
			),
		},
		{
			ID: "ANATR", CompanyName: "Ana Trujillo Emparedados y helados", City: "México D.F.", Country: "Mexico",
			PostalCode: "05021", Phone: "(5) 555-4729",
			Orders: orders("ANATR",
				Order{ID: 10308, Total: 88.80, OrderDate: date(1996, time.September, 18)},
				Order{ID: 10625, Total: 479.75, OrderDate: date(1997, time.August, 8)},
				Order{ID: 10759, Total: 320.00, OrderDate: date(1997, time.November, 28)},
			),
		},
		{
			ID: "ANTON", CompanyName: "Antonio Moreno Taquería", City: "México D.F.", Country: "Mexico",
			PostalCode: "05023", Phone: "(5) 555-3932", Region: region("DF"),
			Orders: orders("ANTON",
				Order{ID: 10365, Total: 403.20, OrderDate: date(1996, time.November, 27)},
				Order{ID: 10507, Total: 749.06, OrderDate: date(1997, time.April, 15)},
				Order{ID: 10535, Total: 1940.85, OrderDate: date(1997, time.May, 13)},
			),
		},
		{
			ID: "AROUT", CompanyName: "Around the Horn", City: "London", Country: "UK",
			PostalCode: "WA1 1DP", Phone: "(171) 555-7788", Region: region("Essex"),
			Orders: orders("AROUT",
				Order{ID: 10355, Total: 480.00, OrderDate: date(1996, time.November, 15)},
				Order{ID: 10383, Total: 899.00, OrderDate: date(1996, time.December, 16)},
				Order{ID: 10453, Total: 407.70, OrderDate: date(1997, time.February, 21)},
				Order{ID: 10558, Total: 2142.90, OrderDate: date(1997, time.June, 4)},
			),
		},
		{
			ID: "BERGS", CompanyName: "Berglunds snabbköp", City: "Luleå", Country: "Sweden",
			PostalCode: "S-958 22", Phone: "0921-12 34 65",
			Orders: orders("BERGS",
				Order{ID: 10278, Total: 1488.80, OrderDate: date(1996, time.August, 12)},
				Order{ID: 10280, Total: 613.20, OrderDate: date(1996, time.August, 14)},
				Order{ID: 10384, Total: 2222.40, OrderDate: date(1996, time.December, 16)},
			),
		},
		{
			ID: "EASTC", CompanyName: "Eastern Connection", City: "London", Country: "UK",
			PostalCode: "WX3 6FW", Phone: "(171) 555-0297",
			Orders: orders("EASTC",
				Order{ID: 10364, Total: 950.00, OrderDate: date(1996, time.November, 26)},
			),
		},
		{
			ID: "FISSA", CompanyName: "FISSA Fabrica Inter. Salchichas S.A.", City: "Madrid", Country: "Spain",
			PostalCode: "28034", Phone: "(91) 555 94 44", Region: region("Madrid"),
		},
		{
			ID: "LONEP", CompanyName: "Lonesome Pine Restaurant", City: "Portland", Country: "USA",
			PostalCode: "97219", Phone: "503-555-9573", Region: region("OR"),
			Orders: orders("LONEP",
				Order{ID: 10307, Total: 424.00, OrderDate: date(1996, time.September, 17)},
				Order{ID: 10317, Total: 288.00, OrderDate: date(1996, time.September, 30)},
			),
		},
		{
			ID: "QUICK", CompanyName: "QUICK-Stop", City: "Cunewalde", Country: "Germany",
			PostalCode: "01307", Phone: "0372-035188",
			Orders: orders("QUICK",
				Order{ID: 10273, Total: 2037.28, OrderDate: date(1996, time.August, 5)},
				Order{ID: 10285, Total: 1743.36, OrderDate: date(1996, time.August, 20)},
				Order{ID: 10865, Total: 16387.50, OrderDate: date(1998, time.February, 2)},
			),
		},
		{
			ID: "ROMEY", CompanyName: "Romero y tomillo", City: "Madrid", Country: "Spain",
			PostalCode: "28001", Phone: "(91) 745 6200",
			Orders: orders("ROMEY",
				Order{ID: 10282, Total: 155.40, OrderDate: date(1996, time.August, 15)},
			),
		},
		{
			ID: "SAVEA", CompanyName: "Save-a-lot Markets", City: "Boise", Country: "USA",
			PostalCode: "83720", Phone: "(208) 555-8097", Region: region("ID"),
			Orders: orders("SAVEA",
				Order{ID: 10324, Total: 5275.72, OrderDate: date(1996, time.October, 8)},
				Order{ID: 10393, Total: 2556.95, OrderDate: date(1996, time.December, 25)},
				Order{ID: 10847, Total: 4931.92, OrderDate: date(1998, time.January, 22)},
				Order{ID: 11030, Total: 16321.90, OrderDate: date(1998, time.April, 17)},
			),
		},
	}
}

func fixtureProducts() []Product {
	return []Product{
		{Name: "Chai", Category: "Beverages", UnitPrice: 18.00, UnitsInStock: 39},
		{Name: "Chang", Category: "Beverages", UnitPrice: 19.00, UnitsInStock: 17},
		{Name: "Aniseed Syrup", Category: "Condiments", UnitPrice: 10.00, UnitsInStock: 13},
		{Name: "Chef Anton's Cajun Seasoning", Category: "Condiments", UnitPrice: 22.00, UnitsInStock: 53},
		{Name: "Chef Anton's Gumbo Mix", Category: "Condiments", UnitPrice: 21.35, UnitsInStock: 0},
		{Name: "Grandma's Boysenberry Spread", Category: "Condiments", UnitPrice: 25.00, UnitsInStock: 120},
		{Name: "Uncle Bob's Organic Dried Pears", Category: "Produce", UnitPrice: 30.00, UnitsInStock: 15},
		{Name: "Northwoods Cranberry Sauce", Category: "Condiments", UnitPrice: 40.00, UnitsInStock: 6},
		{Name: "Mishi Kobe Niku", Category: "Meat/Poultry", UnitPrice: 97.00, UnitsInStock: 0},
		{Name: "Ikura", Category: "Seafood", UnitPrice: 31.00, UnitsInStock: 31},
		{Name: "Queso Cabrales", Category: "Dairy Products", UnitPrice: 21.00, UnitsInStock: 22},
		{Name: "Queso Manchego La Pastora", Category: "Dairy Products", UnitPrice: 38.00, UnitsInStock: 86},
		{Name: "Konbu", Category: "Seafood", UnitPrice: 6.00, UnitsInStock: 24},
		{Name: "Tofu", Category: "Produce", UnitPrice: 23.25, UnitsInStock: 35},
		{Name: "Alice Mutton", Category: "Meat/Poultry", UnitPrice: 39.00, UnitsInStock: 0},
		{Name: "Carnarvon Tigers", Category: "Seafood", UnitPrice: 62.50, UnitsInStock: 42},
		{Name: "Gustaf's Knäckebröd", Category: "Grains/Cereals", UnitPrice: 50.00, UnitsInStock: 104},
		{Name: "Teatime Chocolate Biscuits", Category: "Confections", UnitPrice: 24.99, UnitsInStock: 25},
	}
}

func fixtureSuppliers() []Supplier {
	return []Supplier{
		{Name: "Exotic Liquids", City: "London", Country: "UK"},
		{Name: "New Orleans Cajun Delights", City: "New Orleans", Country: "USA"},
		{Name: "Heli Süßwaren GmbH & Co. KG", City: "Berlin", Country: "Germany"},
		{Name: "Cooperativa de Quesos 'Las Cabras'", City: "Oviedo", Country: "Spain"},
		{Name: "Mayumi's", City: "Osaka", Country: "Japan"},
		{Name: "Thames Provisions", City: "London", Country: "UK"},
		{Name: "Bigfoot Breweries", City: "Bend", Country: "USA"},
		// same city name as two customers, different country
		{Name: "Maple Leaf Provisions", City: "London", Country: "Canada"},
	}
}
