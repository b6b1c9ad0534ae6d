package catalog

import (
	"github.com/edvin/panel/internal/configfile"
	"github.com/edvin/panel/internal/model"
)

func f(v float64) *float64 { return &v }

// Default returns the built-in catalog. Each call returns a fresh copy.
func Default() *Catalog {
	return &Catalog{
		Services:  defaultServices(),
		Templates: defaultTemplates(),
	}
}

func defaultServices() []ServiceDef {
	return []ServiceDef{
		// Runtimes
		{ID: "php", Name: "PHP", Type: model.ServiceTypeRuntime, Description: "PHP runtime with FPM",
			Versions: []string{"8.3", "8.2", "8.1", "8.0", "7.4", "5.6"}, MultiVersion: true,
			Unit: "php{version}-fpm", ConfigPath: "/etc/php/{version}/fpm/php.ini",
			Packages: []string{"php{version}-fpm", "php{version}-cli", "php{version}-common", "php{version}-mysql",
				"php{version}-curl", "php{version}-gd", "php{version}-mbstring", "php{version}-xml", "php{version}-zip"},
			Options: []model.OptionDef{
				{Key: "memory_limit", Label: "Memory Limit", Type: "string", Default: "128M", Restart: true},
				{Key: "upload_max_filesize", Label: "Max Upload Size", Type: "string", Default: "2M", Restart: true},
				{Key: "max_execution_time", Label: "Max Execution Time", Type: "number", Default: "30", Min: f(0), Unit: "seconds", Restart: true},
				{Key: "display_errors", Label: "Display Errors", Type: "boolean", Default: "Off", TrueValue: "On", FalseValue: "Off", Restart: true},
			},
			Extensions: []string{"bcmath", "curl", "gd", "imagick", "intl", "mbstring", "mysql", "opcache",
				"pgsql", "redis", "soap", "sqlite3", "xml", "zip"},
			ExtensionPackage: "php{version}-{ext}", ExtensionDir: "/etc/php/{version}/mods-available"},
		{ID: "nodejs", Name: "Node.js", Type: model.ServiceTypeRuntime, Description: "JavaScript runtime built on V8",
			Versions: []string{"22", "20", "18"}, Packages: []string{"nodejs"},
			Options: []model.OptionDef{
				{Key: "NODE_ENV", Label: "Environment", Type: "select", Default: "production", Options: []string{"development", "production", "test"}},
				{Key: "NODE_OPTIONS", Label: "Node Options", Type: "string", Description: "Additional Node.js CLI options"},
			}},
		{ID: "python", Name: "Python", Type: model.ServiceTypeRuntime, Description: "Python programming language",
			Versions: []string{"3.12", "3.11", "3.10"}, Packages: []string{"python{version}", "python3-pip", "python3-venv"}},
		{ID: "go", Name: "Go", Type: model.ServiceTypeRuntime, Description: "Go programming language",
			Versions: []string{"1.22", "1.21"}, Packages: []string{"golang-{version}"}},
		{ID: "ruby", Name: "Ruby", Type: model.ServiceTypeRuntime, Description: "Ruby programming language",
			Versions: []string{"3.3", "3.2", "3.1"}, Packages: []string{"ruby"}},
		{ID: "java", Name: "Java (OpenJDK)", Type: model.ServiceTypeRuntime, Description: "Java Development Kit",
			Versions: []string{"21", "17", "11"}, MultiVersion: true, Packages: []string{"openjdk-{version}-jdk-headless"}},
		{ID: "dotnet", Name: ".NET", Type: model.ServiceTypeRuntime, Description: ".NET runtime and SDK",
			Versions: []string{"8.0", "7.0", "6.0"}, Packages: []string{"dotnet-sdk-{version}"}},

		// Web servers
		{ID: "nginx", Name: "Nginx", Type: model.ServiceTypeWebServer, Description: "High-performance HTTP server",
			Versions: []string{"1.25", "1.24"}, Unit: "nginx", Port: 80, ConfigPath: "/etc/nginx/nginx.conf",
			ConfigFormat: configfile.FormatNginx,
			Options: []model.OptionDef{
				{Key: "worker_processes", Label: "Worker Processes", Type: "string", Default: "auto", Restart: true},
				{Key: "worker_connections", Label: "Worker Connections", Type: "number", Default: "1024", Min: f(1), Max: f(65535), Restart: true},
				{Key: "keepalive_timeout", Label: "Keepalive Timeout", Type: "number", Default: "65", Min: f(0), Unit: "seconds"},
				{Key: "client_max_body_size", Label: "Max Body Size", Type: "string", Default: "1m", Unit: "bytes"},
				{Key: "gzip", Label: "Enable Gzip", Type: "boolean", Default: "on", TrueValue: "on", FalseValue: "off"},
				{Key: "php_version", Label: "PHP-FPM Version", Type: "select", References: "php", Restart: true,
					Description: "PHP-FPM pool the default server block proxies to"},
			}},
		{ID: "apache", Name: "Apache", Type: model.ServiceTypeWebServer, Description: "Apache HTTP Server",
			Versions: []string{"2.4"}, Unit: "apache2", Port: 80, ConfigPath: "/etc/apache2/apache2.conf", Packages: []string{"apache2"}},
		{ID: "caddy", Name: "Caddy", Type: model.ServiceTypeWebServer, Description: "Modern web server with automatic HTTPS",
			Versions: []string{"2.7", "2.6"}, Unit: "caddy", Port: 80, ConfigPath: "/etc/caddy/Caddyfile"},
		{ID: "traefik", Name: "Traefik", Type: model.ServiceTypeWebServer, Description: "Cloud-native reverse proxy",
			Versions: []string{"3.0", "2.10"}, Unit: "traefik", Port: 80, ConfigPath: "/etc/traefik/traefik.yml"},

		// Databases
		{ID: "mysql", Name: "MySQL", Type: model.ServiceTypeDatabase, Description: "Popular open-source relational database",
			Versions: []string{"8.0", "5.7"}, Unit: "mysql", Port: 3306, ConfigPath: "/etc/mysql/mysql.conf.d/mysqld.cnf",
			Packages: []string{"mysql-server"},
			Options: []model.OptionDef{
				{Key: "port", Label: "Port", Type: "number", Default: "3306", Min: f(1), Max: f(65535), Restart: true},
				{Key: "bind_address", Label: "Bind Address", Type: "string", Default: "127.0.0.1", Restart: true},
				{Key: "max_connections", Label: "Max Connections", Type: "number", Default: "151", Min: f(1), Max: f(1000), Restart: true},
				{Key: "innodb_buffer_pool_size", Label: "InnoDB Buffer Pool", Type: "string", Default: "128M", Unit: "bytes", Restart: true},
				{Key: "slow_query_log", Label: "Slow Query Log", Type: "boolean", Default: "0", TrueValue: "1", FalseValue: "0"},
			}},
		{ID: "mariadb", Name: "MariaDB", Type: model.ServiceTypeDatabase, Description: "MySQL fork with enhanced features",
			Versions: []string{"11.2", "10.11", "10.6"}, Unit: "mariadb", Port: 3306, ConfigPath: "/etc/mysql/mariadb.conf.d/50-server.cnf",
			Packages: []string{"mariadb-server"}},
		{ID: "postgresql", Name: "PostgreSQL", Type: model.ServiceTypeDatabase, Description: "Advanced open-source database",
			Versions: []string{"16", "15", "14", "13"}, MultiVersion: true, Unit: "postgresql@{version}-main", Port: 5432,
			ConfigPath: "/etc/postgresql/{version}/main/postgresql.conf", Packages: []string{"postgresql-{version}"},
			Options: []model.OptionDef{
				{Key: "port", Label: "Port", Type: "number", Default: "5432", Min: f(1), Max: f(65535), Restart: true},
				{Key: "max_connections", Label: "Max Connections", Type: "number", Default: "100", Min: f(1), Restart: true},
				{Key: "shared_buffers", Label: "Shared Buffers", Type: "string", Default: "128MB", Restart: true},
				{Key: "work_mem", Label: "Work Memory", Type: "string", Default: "4MB"},
				{Key: "log_statement", Label: "Log Statement", Type: "select", Default: "none", Options: []string{"none", "ddl", "mod", "all"}},
			}},
		{ID: "mongodb", Name: "MongoDB", Type: model.ServiceTypeDatabase, Description: "Document-oriented NoSQL database",
			Versions: []string{"7.0", "6.0"}, Unit: "mongod", Port: 27017, ConfigPath: "/etc/mongod.conf", Packages: []string{"mongodb-org"}},
		{ID: "sqlite", Name: "SQLite", Type: model.ServiceTypeDatabase, Description: "Lightweight embedded database",
			Versions: []string{"3.45"}, Packages: []string{"sqlite3"}},

		// Cache
		{ID: "redis", Name: "Redis", Type: model.ServiceTypeCache, Description: "In-memory data structure store",
			Versions: []string{"7.2", "7.0", "6.2"}, Unit: "redis-server", Port: 6379, ConfigPath: "/etc/redis/redis.conf",
			ConfigFormat: configfile.FormatSpace,
			Packages: []string{"redis-server"},
			Options: []model.OptionDef{
				{Key: "port", Label: "Port", Type: "number", Default: "6379", Min: f(1), Max: f(65535), Restart: true},
				{Key: "bind", Label: "Bind Address", Type: "string", Default: "127.0.0.1", Restart: true},
				{Key: "maxmemory", Label: "Max Memory", Type: "string", Default: "0", Unit: "bytes", Description: "0 = no limit"},
				{Key: "maxmemory-policy", Label: "Eviction Policy", Type: "select", Default: "noeviction",
					Options: []string{"noeviction", "allkeys-lru", "volatile-lru", "allkeys-random"}},
				{Key: "appendonly", Label: "AOF Persistence", Type: "boolean", Default: "no", TrueValue: "yes", FalseValue: "no", Restart: true},
			}},
		{ID: "memcached", Name: "Memcached", Type: model.ServiceTypeCache, Description: "Distributed memory caching system",
			Versions: []string{"1.6"}, Unit: "memcached", Port: 11211, ConfigPath: "/etc/memcached.conf"},
		{ID: "valkey", Name: "Valkey", Type: model.ServiceTypeCache, Description: "Redis-compatible key-value store",
			Versions: []string{"7.2"}, Unit: "valkey", Port: 6379, ConfigPath: "/etc/valkey/valkey.conf",
			ConfigFormat: configfile.FormatSpace, Packages: []string{"valkey-server"}},

		// Queue
		{ID: "rabbitmq", Name: "RabbitMQ", Type: model.ServiceTypeQueue, Description: "Message broker",
			Versions: []string{"3.12", "3.11"}, Unit: "rabbitmq-server", Port: 5672, ConfigPath: "/etc/rabbitmq/rabbitmq.conf",
			Packages: []string{"rabbitmq-server"}},

		// Tools
		{ID: "docker", Name: "Docker", Type: model.ServiceTypeTool, Description: "Container platform",
			Versions: []string{"25", "24"}, Unit: "docker", Packages: []string{"docker-ce", "docker-ce-cli", "containerd.io"}},
		{ID: "composer", Name: "Composer", Type: model.ServiceTypeTool, Description: "PHP dependency manager",
			Versions: []string{"2.6"}},
		{ID: "certbot", Name: "Certbot", Type: model.ServiceTypeTool, Description: "Let's Encrypt certificate automation",
			Versions: []string{"2.8"}, Packages: []string{"certbot", "python3-certbot-nginx"}},
		{ID: "supervisor", Name: "Supervisor", Type: model.ServiceTypeTool, Description: "Process control system",
			Versions: []string{"4.2"}, Unit: "supervisor"},
	}
}

func defaultTemplates() []model.AppTemplate {
	return []model.AppTemplate{
		{ID: "nginx", Name: "Nginx", Description: "High-performance web server and reverse proxy", Category: "Web Server",
			Version: "1.25", Image: "nginx:1.25-alpine", Ports: []string{"80:80", "443:443"},
			Volumes:     []string{"nginx-config:/etc/nginx", "nginx-html:/usr/share/nginx/html"},
			Environment: map[string]string{}, MinMemory: 64, Tags: []string{"web", "proxy", "server"}},
		{ID: "apache", Name: "Apache HTTP", Description: "The Apache HTTP Server Project", Category: "Web Server",
			Version: "2.4", Image: "httpd:2.4-alpine", Ports: []string{"80:80"},
			Volumes:     []string{"apache-htdocs:/usr/local/apache2/htdocs"},
			Environment: map[string]string{}, MinMemory: 64, Tags: []string{"web", "server"}},
		{ID: "mysql", Name: "MySQL", Description: "The world's most popular open source database", Category: "Database",
			Version: "8.0", Image: "mysql:8.0", Ports: []string{"3306:3306"}, Volumes: []string{"mysql-data:/var/lib/mysql"},
			Environment: map[string]string{"MYSQL_ROOT_PASSWORD": "changeme", "MYSQL_DATABASE": "app"},
			MinMemory:   512, Tags: []string{"database", "sql", "mysql"}},
		{ID: "postgresql", Name: "PostgreSQL", Description: "The world's most advanced open source database", Category: "Database",
			Version: "16", Image: "postgres:16-alpine", Ports: []string{"5432:5432"},
			Volumes:     []string{"postgres-data:/var/lib/postgresql/data"},
			Environment: map[string]string{"POSTGRES_PASSWORD": "changeme", "POSTGRES_DB": "app"},
			MinMemory:   256, Tags: []string{"database", "sql", "postgres"}},
		{ID: "mongodb", Name: "MongoDB", Description: "NoSQL document database", Category: "Database",
			Version: "7.0", Image: "mongo:7.0", Ports: []string{"27017:27017"}, Volumes: []string{"mongo-data:/data/db"},
			Environment: map[string]string{"MONGO_INITDB_ROOT_USERNAME": "root", "MONGO_INITDB_ROOT_PASSWORD": "changeme"},
			MinMemory:   512, Tags: []string{"database", "nosql", "mongo"}},
		{ID: "redis", Name: "Redis", Description: "In-memory data structure store, cache, and message broker", Category: "Cache",
			Version: "7.2", Image: "redis:7.2-alpine", Ports: []string{"6379:6379"}, Volumes: []string{"redis-data:/data"},
			Environment: map[string]string{}, MinMemory: 64, Tags: []string{"cache", "nosql", "redis"}},
		{ID: "wordpress", Name: "WordPress", Description: "World's most popular CMS", Category: "CMS",
			Version: "6.4", Image: "wordpress:6.4-php8.2-apache", Ports: []string{"8080:80"},
			Volumes: []string{"wordpress-content:/var/www/html/wp-content"},
			Environment: map[string]string{
				"WORDPRESS_DB_HOST":     "localhost",
				"WORDPRESS_DB_USER":     "wordpress",
				"WORDPRESS_DB_PASSWORD": "changeme",
				"WORDPRESS_DB_NAME":     "wordpress",
			},
			MinMemory: 256, Tags: []string{"cms", "blog", "php"}},
		{ID: "phpmyadmin", Name: "phpMyAdmin", Description: "Web-based MySQL/MariaDB administration", Category: "Dev Tools",
			Version: "5.2", Image: "phpmyadmin:5.2", Ports: []string{"8081:80"}, Volumes: []string{},
			Environment: map[string]string{"PMA_HOST": "mysql", "PMA_ARBITRARY": "1", "UPLOAD_LIMIT": "100M"},
			MinMemory:   128, Tags: []string{"admin", "mysql", "database"}, Requires: []string{"mysql"}},
		{ID: "adminer", Name: "Adminer", Description: "Database management in single PHP file", Category: "Dev Tools",
			Version: "4.8", Image: "adminer:4.8", Ports: []string{"8082:8080"}, Volumes: []string{},
			Environment: map[string]string{"ADMINER_DEFAULT_SERVER": "localhost"},
			MinMemory:   32, Tags: []string{"admin", "database"}, Requires: []string{"mysql", "postgresql"}},
		{ID: "portainer", Name: "Portainer", Description: "Container management made easy", Category: "Dev Tools",
			Version: "2.19", Image: "portainer/portainer-ce:2.19.4", Ports: []string{"9000:9000", "9443:9443"},
			Volumes:     []string{"/var/run/docker.sock:/var/run/docker.sock", "portainer-data:/data"},
			Environment: map[string]string{}, MinMemory: 64, Tags: []string{"docker", "management", "container"}},
		{ID: "grafana", Name: "Grafana", Description: "Open source analytics and monitoring solution", Category: "Monitoring",
			Version: "10.2", Image: "grafana/grafana:10.2.0", Ports: []string{"3000:3000"}, Volumes: []string{"grafana-data:/var/lib/grafana"},
			Environment: map[string]string{"GF_SECURITY_ADMIN_PASSWORD": "admin"},
			MinMemory:   128, Tags: []string{"monitoring", "dashboard", "metrics"}},
		{ID: "prometheus", Name: "Prometheus", Description: "Monitoring system and time series database", Category: "Monitoring",
			Version: "2.48", Image: "prom/prometheus:v2.48.0", Ports: []string{"9090:9090"}, Volumes: []string{"prometheus-data:/prometheus"},
			Environment: map[string]string{}, MinMemory: 128, Tags: []string{"monitoring", "metrics", "alerting"}},
		{ID: "minio", Name: "MinIO", Description: "High performance object storage (S3 compatible)", Category: "Storage",
			Version: "latest", Image: "minio/minio:latest", Ports: []string{"9000:9000", "9001:9001"}, Volumes: []string{"minio-data:/data"},
			Environment: map[string]string{"MINIO_ROOT_USER": "admin", "MINIO_ROOT_PASSWORD": "changeme"},
			MinMemory:   512, Tags: []string{"storage", "s3", "object"}},
		{ID: "gitea", Name: "Gitea", Description: "Lightweight Git service", Category: "Code",
			Version: "1.21", Image: "gitea/gitea:1.21", Ports: []string{"3000:3000", "2222:22"}, Volumes: []string{"gitea-data:/data"},
			Environment: map[string]string{}, MinMemory: 256, Tags: []string{"git", "vcs", "code"}},
	}
}
